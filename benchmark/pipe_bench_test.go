package benchmark

import (
	"io"
	"runtime"
	"strconv"
	"testing"

	"github.com/llxisdsh/syncore"
	"golang.org/x/sync/errgroup"
)

const (
	streamBytes = 1 << 24
	pipeCap     = 1 << 16
)

func benchmarkStream(b *testing.B, chunk int, w io.WriteCloser, r io.Reader) {
	src := make([]byte, chunk)
	dst := make([]byte, chunk)
	var g errgroup.Group
	g.Go(func() error {
		for sent := 0; sent < streamBytes; sent += chunk {
			if _, err := w.Write(src); err != nil {
				return err
			}
		}
		return w.Close()
	})
	g.Go(func() error {
		for {
			if _, err := r.Read(dst); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	})
	if err := g.Wait(); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkStream(b *testing.B) {
	for _, chunk := range []int{64, 1024, 16384} {
		b.Run("syncore.Pipe/"+strconv.Itoa(chunk), func(b *testing.B) {
			b.SetBytes(streamBytes)
			for b.Loop() {
				p := syncore.NewPipe(pipeCap)
				benchmarkStream(b, chunk, p, p)
			}
		})
		b.Run("io.Pipe/"+strconv.Itoa(chunk), func(b *testing.B) {
			b.SetBytes(streamBytes)
			for b.Loop() {
				r, w := io.Pipe()
				benchmarkStream(b, chunk, w, r)
			}
		})
	}
}

func BenchmarkRingSPSC(b *testing.B) {
	for _, chunk := range []int{16, 256, 4096} {
		b.Run(strconv.Itoa(chunk), func(b *testing.B) {
			r := syncore.NewRing(pipeCap)
			src := make([]byte, chunk)
			dst := make([]byte, chunk)
			total := b.N * chunk
			b.SetBytes(int64(chunk))
			b.ResetTimer()

			var g errgroup.Group
			g.Go(func() error {
				for range b.N {
					for !r.TryWrite(src) {
						runtime.Gosched()
					}
				}
				return nil
			})
			for got := 0; got < total; {
				if n := r.Read(dst); n > 0 {
					got += n
				} else {
					runtime.Gosched()
				}
			}
			_ = g.Wait()
		})
	}
}

func BenchmarkChannelBytes(b *testing.B) {
	for _, chunk := range []int{16, 256, 4096} {
		b.Run(strconv.Itoa(chunk), func(b *testing.B) {
			ch := make(chan []byte, pipeCap/chunk)
			src := make([]byte, chunk)
			b.SetBytes(int64(chunk))
			b.ResetTimer()

			go func() {
				for range b.N {
					ch <- src
				}
				close(ch)
			}()
			for range ch {
			}
		})
	}
}

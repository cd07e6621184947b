package pushbuf

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkWait(b *testing.B) {
	tests := []struct {
		words      int
		batchWords int
	}{
		{
			words:      256,
			batchWords: 8,
		},
		{
			words:      1024,
			batchWords: 64,
		},
		{
			words:      4096,
			batchWords: 512,
		},
	}

	for _, test := range tests {
		b.Run(
			fmt.Sprintf("pushbuf-%d-batch-%d", test.words, test.batchWords),
			func(b *testing.B) {
				s, _, _ := newTestSequencer(b, test.words, true)
				batch := make([]uint32, test.batchWords)
				lockBoth(s)
				defer unlockBoth(s)

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					require.NoError(b, s.Reserve(len(batch)))
					s.push.Write(batch...)
					f := s.Current().Ref()
					require.NoError(b, s.Wait(f))
					f.Unref()
				}
			},
		)
	}
}

func BenchmarkAttachWork(b *testing.B) {
	s, _, _ := newTestSequencer(b, 1024, true)
	lockBoth(s)
	defer unlockBoth(s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		require.NoError(b, s.AttachWork(s.Current(), func() {}))
	}
}

package ltl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqAuthStoreAcceptsIncreasing(t *testing.T) {
	s := NewSeqAuthStore()
	src := Address(0x0100)

	assert.Equal(t, SeqAuthAccept, s.Check(src, MakeSeqAuth(1, 10)))
	s.Commit(src, MakeSeqAuth(1, 10))

	assert.Equal(t, SeqAuthAccept, s.Check(src, MakeSeqAuth(1, 11)))
	s.Commit(src, MakeSeqAuth(1, 11))

	last, ok := s.Last(src)
	assert.True(t, ok)
	assert.Equal(t, MakeSeqAuth(1, 11), last)
}

func TestSeqAuthStoreDetectsDuplicateAndReplay(t *testing.T) {
	s := NewSeqAuthStore()
	src := Address(0x0100)
	s.Commit(src, MakeSeqAuth(1, 10))

	assert.Equal(t, SeqAuthDuplicateSameSeqAuth, s.Check(src, MakeSeqAuth(1, 10)))
	assert.Equal(t, SeqAuthReplay, s.Check(src, MakeSeqAuth(1, 9)))
}

func TestSeqAuthStoreTracksPeersIndependently(t *testing.T) {
	s := NewSeqAuthStore()
	a, b := Address(0x0100), Address(0x0200)
	s.Commit(a, MakeSeqAuth(1, 100))

	assert.Equal(t, SeqAuthAccept, s.Check(b, MakeSeqAuth(1, 0)))
}

func TestSeqAuthStoreCommitNeverLowers(t *testing.T) {
	s := NewSeqAuthStore()
	src := Address(0x0100)
	s.Commit(src, MakeSeqAuth(1, 10))
	s.Commit(src, MakeSeqAuth(1, 5))

	last, ok := s.Last(src)
	assert.True(t, ok)
	assert.Equal(t, MakeSeqAuth(1, 10), last)
}

func TestSeqAuthStoreRestoreSeedsWithoutLowering(t *testing.T) {
	s := NewSeqAuthStore()
	src := Address(0x0100)
	s.Restore(src, MakeSeqAuth(2, 50))

	assert.Equal(t, SeqAuthReplay, s.Check(src, MakeSeqAuth(2, 49)))
	assert.Equal(t, SeqAuthAccept, s.Check(src, MakeSeqAuth(2, 51)))

	s.Restore(src, MakeSeqAuth(1, 0))
	last, _ := s.Last(src)
	assert.Equal(t, MakeSeqAuth(2, 50), last, "restore must never lower an already-committed value")
}

func TestMakeSeqAuthPacksIvIndexAndSeq(t *testing.T) {
	sa := MakeSeqAuth(7, 0x00ABCDEF)
	assert.EqualValues(t, 7, sa.IvIndex())
	assert.EqualValues(t, 0x00ABCDEF, sa.Seq())
}

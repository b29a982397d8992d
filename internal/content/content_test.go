package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateDisposition(t *testing.T) {
	n := NewNegotiator(nil)

	tests := []struct {
		name string
		view bool
		mime string
		disp Disposition
	}{
		{"photo.jpg", false, "image/jpeg", Attachment},
		{"photo.jpg", true, "image/jpeg", Inline},
		{"PHOTO.JPG", true, "image/jpeg", Inline},
		{"icon.png", true, "image/png", Inline},
		{"anim.gif", true, "image/gif", Inline},
		{"clip.mp4", false, "video/mp4", Attachment},
		{"clip.mp4", true, "video/mp4", Inline},
		{"doc.pdf", true, "application/pdf", Attachment},
		{"doc.pdf", false, "application/pdf", Attachment},
		{"blob", true, DefaultMIME, Attachment},
		{"data.unknownext", true, DefaultMIME, Attachment},
	}
	for _, tt := range tests {
		got := n.Negotiate(tt.name, tt.view)
		assert.Equal(t, tt.mime, got.MIME, "mime for %s", tt.name)
		assert.Equal(t, tt.disp, got.Disposition, "disposition for %s view=%v", tt.name, tt.view)
		assert.Equal(t, CacheMaxAge, got.CacheMaxAge)
	}
}

func TestNegotiateNonStreamableNeverInline(t *testing.T) {
	n := NewNegotiator(map[string]string{".txt": "text/plain; charset=utf-8"})
	for _, name := range []string{"a.txt", "b.zip", "c.html", "d.json", "e"} {
		assert.Equal(t, Attachment, n.Negotiate(name, true).Disposition, name)
	}
}

func TestNegotiatorOverrides(t *testing.T) {
	n := NewNegotiator(map[string]string{
		"WEBM":  "video/webm",
		".heic": "image/heic",
		".mp4":  "application/x-custom",
	})
	assert.Equal(t, "video/webm", n.TypeByName("movie.webm"))
	assert.Equal(t, Inline, n.Negotiate("pic.heic", true).Disposition)
	// video/webm is not streamable media.
	assert.Equal(t, Attachment, n.Negotiate("movie.webm", true).Disposition)
	assert.False(t, n.Negotiate("x.mp4", true).RangeEligible())
}

func TestContentDisposition(t *testing.T) {
	n := NewNegotiator(nil)
	assert.Equal(t, "attachment; filename=test01.jpg", n.Negotiate("test01.jpg", false).ContentDisposition())
	assert.Equal(t, "inline; filename=test01.jpg", n.Negotiate("dir/test01.jpg", true).ContentDisposition())
	assert.Equal(t, `attachment; filename="my file.txt"`, n.Negotiate("my file.txt", false).ContentDisposition())
	assert.Equal(t, "public, max-age=86400", n.Negotiate("a.jpg", false).CacheControl())
}

func TestParseView(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "True", " true "} {
		assert.True(t, ParseView(v), v)
	}
	for _, v := range []string{"", "false", "1", "yes", "truee"} {
		assert.False(t, ParseView(v), v)
	}
}

func TestStreamableAndRangeEligible(t *testing.T) {
	assert.True(t, IsStreamable("image/svg+xml"))
	assert.True(t, IsStreamable("video/mp4"))
	assert.False(t, IsStreamable("video/webm"))
	assert.False(t, IsStreamable("text/plain; charset=utf-8"))

	assert.True(t, RangeEligible("video/mp4"))
	assert.False(t, RangeEligible("image/jpeg"))
	assert.False(t, RangeEligible("application/octet-stream"))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		spec  string
		total int64
		want  Range
	}{
		{"bytes=0-499", 1000, Range{0, 499}},
		{"bytes=500-", 1000, Range{500, 999}},
		{"bytes=500-999", 1000, Range{500, 999}},
		{"bytes=900-2000", 1000, Range{900, 999}},
		{"bytes=0-0", 1000, Range{0, 0}},
		{"bytes=999-", 1000, Range{999, 999}},
		{"bytes=-100", 1000, Range{900, 999}},
		{"bytes=-5000", 1000, Range{0, 999}},
		{"bytes=0-99999999999999999999", 1000, Range{0, 999}},
		{" bytes=10-19 ", 1000, Range{10, 19}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.spec, tt.total)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, got, tt.spec)
		assert.True(t, got.Start >= 0 && got.Start <= got.End && got.End <= tt.total-1, "invariant for %s", tt.spec)
	}
}

func TestParseRangeMalformed(t *testing.T) {
	specs := []string{
		"",
		"bytes=",
		"bytes=-",
		"bytes=0-10,20-30",
		"bytes=abc-def",
		"items=0-10",
		"bytes=500-100",
		"bytes=1000-",
		"bytes=1500-2000",
		"bytes=-0",
	}
	for _, spec := range specs {
		_, err := ParseRange(spec, 1000)
		assert.True(t, errors.Is(err, ErrMalformedRange), "%q: err = %v", spec, err)
	}

	_, err := ParseRange("bytes=0-", 0)
	assert.ErrorIs(t, err, ErrMalformedRange, "empty file")
}

func TestRangeHeaders(t *testing.T) {
	r := Range{Start: 0, End: 499}
	assert.Equal(t, int64(500), r.Length())
	assert.Equal(t, "bytes 0-499/1000", r.ContentRange(1000))
}

// Package content decides how a file is presented to the client: its MIME
// type, inline or attachment disposition, and partial-content ranges.
package content

import (
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Disposition is the Content-Disposition type.
type Disposition string

const (
	Inline     Disposition = "inline"
	Attachment Disposition = "attachment"
)

// DefaultMIME is used when no table knows the extension.
const DefaultMIME = "application/octet-stream"

// CacheMaxAge is the client cache lifetime advertised for files.
const CacheMaxAge = 24 * time.Hour

// fallbackTypes covers media extensions missing from minimal system tables.
var fallbackTypes = map[string]string{
	".mp4": "video/mp4",
	".bmp": "image/bmp",
}

// Negotiation is the presentation decided for one file.
type Negotiation struct {
	MIME        string
	Disposition Disposition
	Filename    string
	CacheMaxAge time.Duration
}

// ContentDisposition formats the header value, e.g.
// "attachment; filename=test01.jpg". Names that are not plain tokens are
// quoted or RFC 2231 encoded.
func (n Negotiation) ContentDisposition() string {
	v := mime.FormatMediaType(string(n.Disposition), map[string]string{"filename": n.Filename})
	if v == "" {
		return string(n.Disposition)
	}
	return v
}

// CacheControl formats the Cache-Control header value.
func (n Negotiation) CacheControl() string {
	return "public, max-age=" + strconv.FormatInt(int64(n.CacheMaxAge/time.Second), 10)
}

// RangeEligible reports whether byte ranges are honoured for the file.
func (n Negotiation) RangeEligible() bool {
	return RangeEligible(n.MIME)
}

// Negotiator maps file names to MIME types. Overrides are consulted before
// the system table.
type Negotiator struct {
	overrides map[string]string
}

// NewNegotiator returns a Negotiator with the given extension overrides.
// Keys may be given with or without the leading dot and in any case.
func NewNegotiator(overrides map[string]string) *Negotiator {
	n := &Negotiator{overrides: make(map[string]string, len(overrides))}
	for ext, typ := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || typ == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		n.overrides[ext] = typ
	}
	return n
}

// TypeByName returns the MIME type for a file name.
func (n *Negotiator) TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return DefaultMIME
	}
	if n != nil {
		if t, ok := n.overrides[ext]; ok {
			return t
		}
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, ok := fallbackTypes[ext]; ok {
		return t
	}
	return DefaultMIME
}

// Negotiate decides MIME type and disposition. The file is inline only when
// it is streamable media and the client asked to view it.
func (n *Negotiator) Negotiate(name string, view bool) Negotiation {
	typ := n.TypeByName(name)
	disp := Attachment
	if view && IsStreamable(typ) {
		disp = Inline
	}
	return Negotiation{
		MIME:        typ,
		Disposition: disp,
		Filename:    filepath.Base(name),
		CacheMaxAge: CacheMaxAge,
	}
}

// ParseView interprets the "view" query parameter.
func ParseView(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// IsStreamable reports whether typ is image/* or video/mp4.
func IsStreamable(typ string) bool {
	base := baseType(typ)
	return strings.HasPrefix(base, "image/") || base == "video/mp4"
}

// RangeEligible reports whether byte ranges are served for typ. Only
// video/mp4 qualifies; every other type gets the whole body.
func RangeEligible(typ string) bool {
	return baseType(typ) == "video/mp4"
}

func baseType(typ string) string {
	if t, _, err := mime.ParseMediaType(typ); err == nil {
		return t
	}
	return strings.ToLower(strings.TrimSpace(typ))
}

// Package listing builds and renders directory listing pages.
package listing

import (
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	MinPageSize = 1
	MaxPageSize = 100
)

// mediaExts are the extensions that get a view link. Every one of them maps
// to image/* or video/mp4, so the view link always renders inline.
var mediaExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".svg":  true,
	".mp4":  true,
}

// IsMedia reports whether name has a media extension (case-insensitive).
func IsMedia(name string) bool {
	return mediaExts[strings.ToLower(path.Ext(name))]
}

// Entry is one child of a directory.
type Entry struct {
	Name    string
	Rel     string // relative to the served root, slash separated
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Link is an entry ready for rendering.
type Link struct {
	Name     string
	Href     string
	ViewHref string // empty unless the entry is a media file
	IsDir    bool
	Size     int64
	ModTime  time.Time
}

// Media reports whether the link carries a view link.
func (l Link) Media() bool { return l.ViewHref != "" }

// Listing is a rendered-ready directory page.
type Listing struct {
	Rel        string
	Title      string
	ParentHref string // empty at the root
	Links      []Link

	Paginated bool
	Page      int
	PageSize  int
	Total     int
	PrevHref  string
	NextHref  string
}

// Sort orders entries by raw name bytes.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// Build sorts entries and produces the listing for directory rel.
func Build(rel string, entries []Entry) Listing {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	Sort(sorted)

	l := Listing{
		Rel:   rel,
		Title: "/" + rel,
		Links: make([]Link, 0, len(sorted)),
	}
	if rel != "" {
		l.ParentHref = DirHref(parentOf(rel))
	}
	for _, e := range sorted {
		l.Links = append(l.Links, linkFor(e))
	}
	return l
}

// BuildPage is Build followed by slicing to one page. page and pageSize are
// clamped first; a page past the end yields no links.
func BuildPage(rel string, entries []Entry, page, pageSize int) Listing {
	page, pageSize = ClampPage(page), ClampPageSize(pageSize)

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	Sort(sorted)

	l := Build(rel, Paginate(sorted, page, pageSize))
	l.Paginated = true
	l.Page = page
	l.PageSize = pageSize
	l.Total = len(entries)

	self := DirHref(rel)
	if page > 1 {
		l.PrevHref = pageHref(self, page-1, pageSize)
	}
	if page*pageSize < len(entries) {
		l.NextHref = pageHref(self, page+1, pageSize)
	}
	return l
}

// Paginate returns entries[(page-1)*pageSize : page*pageSize], clipped to
// the slice. Out-of-range pages return an empty slice.
func Paginate(entries []Entry, page, pageSize int) []Entry {
	page, pageSize = ClampPage(page), ClampPageSize(pageSize)
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []Entry{}
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

// ClampPage returns page, or 1 when page is below 1.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampPageSize bounds size to [MinPageSize, MaxPageSize].
func ClampPageSize(size int) int {
	if size < MinPageSize {
		return MinPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// ParsePaging reads the page and page_size query values. Missing or
// non-numeric values fall back to 1 and defaultSize; numbers are clamped.
func ParsePaging(pageStr, sizeStr string, defaultSize int) (page, size int) {
	page, size = 1, defaultSize
	if v, err := strconv.Atoi(strings.TrimSpace(pageStr)); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(sizeStr)); err == nil {
		size = v
	}
	return ClampPage(page), ClampPageSize(size)
}

// FileHref is the URL path of a file.
func FileHref(rel string) string {
	return "/" + escapePath(rel)
}

// DirHref is the URL path of a directory, with a trailing slash.
func DirHref(rel string) string {
	if rel == "" {
		return "/"
	}
	return "/" + escapePath(rel) + "/"
}

func linkFor(e Entry) Link {
	l := Link{
		Name:    e.Name,
		IsDir:   e.IsDir,
		Size:    e.Size,
		ModTime: e.ModTime,
	}
	if e.IsDir {
		l.Href = DirHref(e.Rel)
		return l
	}
	l.Href = FileHref(e.Rel)
	if IsMedia(e.Name) {
		l.ViewHref = l.Href + "?view=true"
	}
	return l
}

func pageHref(base string, page, size int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(size))
	return base + "?" + q.Encode()
}

func parentOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func escapePath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Package playlistfile implements read-only import for the playlist
// container formats spec.md §6 lists: .m3u, .m3u8, .pls, .b4s (line- or
// key=value-oriented), and .xspf/.wpl/.asx (small XML dialects). No
// dependency in the retrieval pack parses any of these containers, and
// they are simple enough that a hand-rolled parser is the right call
// rather than reaching for an unseen library (see DESIGN.md).
//
// Every parser produces the same Entry list; internal/parser's Linking
// service turns each Entry into a Link task pointing at the owning
// Playlist.
package playlistfile

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is one member of an imported playlist: the mrl a Link task should
// resolve, in file order (Extra is the position spec.md's Task.link_extra
// records).
type Entry struct {
	Mrl   string
	Title string
	Extra uint8
}

// Format identifies which container a file extension maps to.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatM3U
	FormatPLS
	FormatXSPF
	FormatASX
	FormatWPL
	FormatB4S
)

// FormatForExtension classifies a playlist file by its extension (.m3u and
// .m3u8 both map to FormatM3U: m3u8 is just UTF-8 m3u).
func FormatForExtension(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return FormatM3U
	case ".pls":
		return FormatPLS
	case ".xspf":
		return FormatXSPF
	case ".asx":
		return FormatASX
	case ".wpl":
		return FormatWPL
	case ".b4s":
		return FormatB4S
	default:
		return FormatUnknown
	}
}

// Parse dispatches to the parser matching path's extension.
func Parse(path string, r io.Reader) ([]Entry, error) {
	switch FormatForExtension(path) {
	case FormatM3U:
		return ParseM3U(r)
	case FormatPLS:
		return ParsePLS(r)
	case FormatXSPF:
		return ParseXSPF(r)
	case FormatASX:
		return ParseASX(r)
	case FormatWPL:
		return ParseWPL(r)
	case FormatB4S:
		return ParseB4S(r)
	default:
		return nil, fmt.Errorf("playlistfile: unrecognized extension %q", filepath.Ext(path))
	}
}

// ParseM3U reads lines, skipping #EXTM3U/#EXTINF directives and blank
// lines, treating every remaining non-comment line as an mrl or a relative
// path. #EXTINF's trailing text after the comma becomes the entry's Title.
func ParseM3U(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var out []Entry
	var pendingTitle string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			if idx := strings.Index(line, ","); idx >= 0 {
				pendingTitle = strings.TrimSpace(line[idx+1:])
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Entry{Mrl: line, Title: pendingTitle, Extra: uint8(len(out))})
		pendingTitle = ""
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan m3u: %w", err)
	}
	return out, nil
}

// ParsePLS reads the INI-style "File1=...", "Title1=..." key/value pairs a
// .pls file carries, joining each FileN with its matching TitleN by index.
func ParsePLS(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	files := make(map[int]string)
	titles := make(map[int]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		n, numKey, ok := splitTrailingDigits(key)
		if !ok {
			continue
		}
		switch strings.ToLower(n) {
		case "file":
			files[numKey] = val
		case "title":
			titles[numKey] = val
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan pls: %w", err)
	}

	out := make([]Entry, 0, len(files))
	for i := 1; i <= len(files); i++ {
		mrl, ok := files[i]
		if !ok {
			continue
		}
		out = append(out, Entry{Mrl: mrl, Title: titles[i], Extra: uint8(len(out))})
	}
	return out, nil
}

// splitTrailingDigits splits "File12" into ("File", 12, true); returns
// ok=false if key has no trailing digit run.
func splitTrailingDigits(key string) (string, int, bool) {
	i := len(key)
	for i > 0 && key[i-1] >= '0' && key[i-1] <= '9' {
		i--
	}
	if i == len(key) {
		return key, 0, false
	}
	n, err := strconv.Atoi(key[i:])
	if err != nil {
		return key, 0, false
	}
	return key[:i], n, true
}

// xspfDoc mirrors the handful of XSPF elements this importer needs; xspf
// embeds its "location" as a URI already, matching spec.md's mrl shape.
type xspfDoc struct {
	XMLName   xml.Name `xml:"playlist"`
	TrackList struct {
		Track []struct {
			Location string `xml:"location"`
			Title    string `xml:"title"`
		} `xml:"track"`
	} `xml:"trackList"`
}

func ParseXSPF(r io.Reader) ([]Entry, error) {
	var doc xspfDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xspf: %w", err)
	}
	out := make([]Entry, 0, len(doc.TrackList.Track))
	for _, t := range doc.TrackList.Track {
		if t.Location == "" {
			continue
		}
		out = append(out, Entry{Mrl: t.Location, Title: t.Title, Extra: uint8(len(out))})
	}
	return out, nil
}

// asxDoc mirrors a Windows Media .asx playlist: a flat list of <entry>
// elements each with a <ref href="..."/> and optional <title>.
type asxDoc struct {
	XMLName xml.Name `xml:"ASX"`
	Entries []struct {
		Ref struct {
			Href string `xml:"href,attr"`
		} `xml:"ref"`
		Title string `xml:"title"`
	} `xml:"entry"`
}

func ParseASX(r io.Reader) ([]Entry, error) {
	var doc asxDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode asx: %w", err)
	}
	out := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.Ref.Href == "" {
			continue
		}
		out = append(out, Entry{Mrl: e.Ref.Href, Title: e.Title, Extra: uint8(len(out))})
	}
	return out, nil
}

// wplDoc mirrors a Windows Media Player .wpl playlist: <seq><media src=...
// tid=.../></seq> inside <body><smartPlaylist>.
type wplDoc struct {
	XMLName xml.Name `xml:"smil"`
	Body    struct {
		Seq struct {
			Media []struct {
				Src string `xml:"src,attr"`
			} `xml:"media"`
		} `xml:"seq"`
	} `xml:"body"`
}

func ParseWPL(r io.Reader) ([]Entry, error) {
	var doc wplDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode wpl: %w", err)
	}
	out := make([]Entry, 0, len(doc.Body.Seq.Media))
	for _, m := range doc.Body.Seq.Media {
		if m.Src == "" {
			continue
		}
		out = append(out, Entry{Mrl: m.Src, Extra: uint8(len(out))})
	}
	return out, nil
}

// b4sDoc mirrors a Winamp .b4s playlist: <playlist><entry Playstring="..."><Name>...</Name></entry></playlist>.
type b4sDoc struct {
	XMLName xml.Name `xml:"WinampXML"`
	Entries []struct {
		Playstring string `xml:"Playstring,attr"`
		Name       string `xml:"Name"`
	} `xml:"playlist>entry"`
}

func ParseB4S(r io.Reader) ([]Entry, error) {
	var doc b4sDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode b4s: %w", err)
	}
	out := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		mrl := e.Playstring
		mrl = strings.TrimPrefix(mrl, "Open:")
		if mrl == "" {
			continue
		}
		out = append(out, Entry{Mrl: mrl, Title: e.Name, Extra: uint8(len(out))})
	}
	return out, nil
}

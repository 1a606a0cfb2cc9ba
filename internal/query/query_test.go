package query

import "testing"

func TestNormalizeClampsLimitAndOffset(t *testing.T) {
	p := Params{Limit: 0, Offset: -5}.Normalize()
	if p.Limit != 50 {
		t.Fatalf("expected default limit 50, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", p.Offset)
	}

	p = Params{Limit: 500}.Normalize()
	if p.Limit != 50 {
		t.Fatalf("expected oversized limit to fall back to 50, got %d", p.Limit)
	}

	p = Params{Limit: 10}.Normalize()
	if p.Limit != 10 {
		t.Fatalf("expected a valid limit to pass through unchanged, got %d", p.Limit)
	}
}

func TestNormalizePlayCountDefaultsDescending(t *testing.T) {
	p := Params{Sort: SortPlayCount}.Normalize()
	if !p.Desc {
		t.Fatal("expected SortPlayCount to default to descending")
	}

	p = Params{Sort: SortAlpha}.Normalize()
	if p.Desc {
		t.Fatal("expected SortAlpha to leave Desc at its zero value")
	}
}

func TestOrderClauseAndLimitClause(t *testing.T) {
	p := Params{Desc: true, Limit: 25, Offset: 10}
	if got, want := p.OrderClause("title", "id_media"), "ORDER BY title DESC, id_media ASC"; got != want {
		t.Fatalf("order clause = %q, want %q", got, want)
	}
	if got, want := p.LimitClause(), "LIMIT 25 OFFSET 10"; got != want {
		t.Fatalf("limit clause = %q, want %q", got, want)
	}
}

func TestColumnForMediaDegradesUnsupportedSortsToTitle(t *testing.T) {
	for _, s := range []Sort{SortArtist, SortAlbum, SortTrackNumber, SortTrackId, SortNbAudio, SortNbVideo, SortNbAlbum} {
		if got := ColumnForMedia(s); got != "title" {
			t.Fatalf("ColumnForMedia(%v) = %q, want degrade to title", s, got)
		}
	}
	if got := ColumnForMedia(SortDuration); got != "duration" {
		t.Fatalf("ColumnForMedia(SortDuration) = %q, want duration", got)
	}
}

func TestColumnForAlbumMapsNbMediaAndNbAlbumToTrackCount(t *testing.T) {
	if got := ColumnForAlbum(SortNbMedia); got != "nb_tracks" {
		t.Fatalf("ColumnForAlbum(SortNbMedia) = %q, want nb_tracks", got)
	}
	if got := ColumnForAlbum(SortNbAlbum); got != "nb_tracks" {
		t.Fatalf("ColumnForAlbum(SortNbAlbum) = %q, want nb_tracks", got)
	}
}

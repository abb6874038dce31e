// Package party provides the Party and Participant domain entities.
package party

import "time"

// Genre enumerates the party genres accepted at creation time.
type Genre string

const (
	GenreElectronic  Genre = "Electronic"
	GenreHouse       Genre = "House"
	GenreTechno      Genre = "Techno"
	GenreTrance      Genre = "Trance"
	GenreDrumAndBass Genre = "Drum & Bass"
	GenreHipHop      Genre = "Hip-Hop"
	GenrePop         Genre = "Pop"
	GenreMixed       Genre = "Mixed"
)

// Genres lists all valid genres.
func Genres() []Genre {
	return []Genre{
		GenreElectronic, GenreHouse, GenreTechno, GenreTrance,
		GenreDrumAndBass, GenreHipHop, GenrePop, GenreMixed,
	}
}

// Valid reports whether g is a known genre.
func (g Genre) Valid() bool {
	for _, known := range Genres() {
		if g == known {
			return true
		}
	}
	return false
}

// Privacy controls who may join a party.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// Valid reports whether p is a known privacy setting.
func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

// Party holds the metadata of one listening room. It is persisted by the
// party store and read once when the session engine for the party is
// created; the live session state itself is never persisted.
type Party struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Genre        Genre     `db:"genre"`
	Privacy      Privacy   `db:"privacy"`
	PasswordHash string    `db:"password_hash"` // bcrypt, empty for public parties
	Description  string    `db:"description"`
	CoverRef     string    `db:"cover_ref"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

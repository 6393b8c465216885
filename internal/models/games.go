package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type GameStatus string

const (
	StatusNotStarted GameStatus = "Not Started"
	StatusInProgress GameStatus = "In Progress"
	StatusComplete   GameStatus = "Complete"
	StatusTabled     GameStatus = "Tabled"
)

// Statuses lists every known status in display order.
var Statuses = []GameStatus{StatusNotStarted, StatusInProgress, StatusComplete, StatusTabled}

func (s GameStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// UnreleasedLabel is stored in place of an hour estimate when none is known.
const UnreleasedLabel = "Unreleased"

// Playtime is a main-story estimate in hours or the "Unreleased" sentinel.
// Stored values are kept as they are, fractions included. The zero value is the sentinel.
type Playtime struct {
	Hours float64
}

func HoursPlaytime(hours float64) Playtime {
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		hours = 0
	}
	return Playtime{Hours: hours}
}

// PlaytimeFromHours rounds to the nearest hour. Used for provider data and
// user input, never for values read back from the data file.
func PlaytimeFromHours(hours float64) Playtime {
	return HoursPlaytime(math.Round(hours))
}

func Unreleased() Playtime {
	return Playtime{}
}

// IsUnreleased reports whether the estimate is missing. A stored 0 counts as missing.
func (p Playtime) IsUnreleased() bool {
	return p.Hours == 0
}

func (p Playtime) String() string {
	if p.IsUnreleased() {
		return UnreleasedLabel
	}
	return strconv.FormatFloat(p.Hours, 'f', -1, 64)
}

func (p Playtime) MarshalJSON() ([]byte, error) {
	if p.IsUnreleased() {
		return json.Marshal(UnreleasedLabel)
	}
	return json.Marshal(p.Hours)
}

func (p *Playtime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Unreleased()
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := parseHours(s)
		if err != nil {
			return err
		}
		*p = HoursPlaytime(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("playtime: %w", err)
	}
	*p = HoursPlaytime(f)
	return nil
}

// ParsePlaytime reads submitted hours: "Unreleased", an empty string or a
// number, rounded to the nearest hour.
func ParsePlaytime(s string) (Playtime, error) {
	f, err := parseHours(s)
	if err != nil {
		return Playtime{}, err
	}
	return PlaytimeFromHours(f), nil
}

func parseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, UnreleasedLabel) {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("playtime: invalid value %q", s)
	}
	return f, nil
}

// GameID is the provider-assigned identifier. Older data files stored some ids
// as strings, so decoding accepts both forms; encoding always writes a number.
type GameID int64

func (id GameID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id *GameID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseGameID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("game id: %w", err)
	}
	*id = GameID(n)
	return nil
}

func ParseGameID(s string) (GameID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("game id: invalid value %q", s)
	}
	return GameID(n), nil
}

type Game struct {
	GameID         GameID     `json:"GameID"`
	GameName       string     `json:"GameName"`
	HowLongToBeat  Playtime   `json:"HowLongToBeat"`
	ProgressStatus GameStatus `json:"ProgressStatus"`
	ImageURL       string     `json:"ImageURL"`
	ReleaseYear    *int       `json:"ReleaseYear,omitempty"`
	DateAdded      *time.Time `json:"DateAdded,omitempty"`
}

// Candidate is a search hit from the metadata provider that has not been stored yet.
type Candidate struct {
	ExternalID  GameID
	Name        string
	ImageRef    string
	MainStory   Playtime
	ReleaseYear *int
}

// GameStats aggregates the collection per progress status.
type GameStats struct {
	TotalGames int                        `json:"total_games"`
	TotalHours float64                    `json:"total_hours"`
	ByStatus   map[GameStatus]StatusStats `json:"by_status"`
}

type StatusStats struct {
	Count int     `json:"count"`
	Hours float64 `json:"hours"`
}

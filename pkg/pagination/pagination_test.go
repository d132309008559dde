package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit} {
		assert.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
}

func TestLimitOrDefaultDoesNotCap(t *testing.T) {
	assert.Equal(t, DefaultLimit, LimitOrDefault(0))
	assert.Equal(t, DefaultLimit, LimitOrDefault(-1))
	assert.Equal(t, MaxLimit*3, LimitOrDefault(MaxLimit*3))
}

func TestCursorRoundTrip(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 4, 30, 0, 123, loc), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, time.UTC, out.CreatedAt.Location())
	assert.Equal(t, in.ID, out.ID)

	first, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, first)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString
	for name, value := range map[string]string{
		"not base64": "not-base64!",
		"not json":   enc([]byte("2026|abc")),
		"missing id": enc([]byte(`{"t":"2026-05-01T00:00:00Z"}`)),
		"bad id":     enc([]byte(`{"t":"2026-05-01T00:00:00Z","id":"nope"}`)),
	} {
		_, err := ParseCursor(value)
		assert.ErrorIs(t, err, errMalformed, name)
	}
}

type row struct {
	at time.Time
	id uuid.UUID
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{base.Add(3), uuid.New()}, {base.Add(2), uuid.New()}, {base.Add(1), uuid.New()}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, key)
	require.Len(t, page, 2)
	c, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, c.ID)

	page, next = Trim(rows, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}

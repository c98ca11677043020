package receipt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() Data {
	return Data{
		TxRef:       "booking-1-7",
		BookingID:   1,
		ListingName: "Lake Tana Lodge",
		GuestName:   "Sara Tesfaye",
		GuestEmail:  "sara@example.com",
		StartDate:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("251"),
		PaidAt:      time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC),
	}
}

func TestGenerateWritesPDF(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "receipts")
	g, err := NewGenerator(dir)
	require.NoError(t, err)

	path, err := g.Generate(sampleData())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "receipt_booking-1-7.pdf"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(content) > 100)
	assert.Equal(t, "%PDF", string(content[:4]))
}

func TestGenerateOverwrites(t *testing.T) {
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	first, err := g.Generate(sampleData())
	require.NoError(t, err)
	second, err := g.Generate(sampleData())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateRejectsUnsafeTxRef(t *testing.T) {
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../etc/passwd", "a/b", "booking 1"} {
		d := sampleData()
		d.TxRef = ref
		_, err := g.Generate(d)
		assert.Error(t, err, ref)
	}
}

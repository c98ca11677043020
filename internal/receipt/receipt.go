package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"travel-service/internal/util"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var txRefPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Data is everything printed on a payment receipt
type Data struct {
	TxRef       string
	BookingID   int64
	ListingName string
	GuestName   string
	GuestEmail  string
	StartDate   time.Time
	EndDate     time.Time
	Amount      decimal.Decimal
	Currency    string
	PaidAt      time.Time
}

// Generator writes PDF receipts into a directory
type Generator struct {
	dir    string
	logger *zap.Logger
}

// NewGenerator creates dir if needed and returns a generator writing into it
func NewGenerator(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create receipts dir: %w", err)
	}
	return &Generator{
		dir:    dir,
		logger: util.GetLogger().Named("receipt"),
	}, nil
}

// Path returns where the receipt for txRef is written
func (g *Generator) Path(txRef string) string {
	return filepath.Join(g.dir, fmt.Sprintf("receipt_%s.pdf", txRef))
}

// Generate renders the receipt and returns its path. Regenerating overwrites.
func (g *Generator) Generate(d Data) (string, error) {
	if !txRefPattern.MatchString(d.TxRef) {
		return "", fmt.Errorf("invalid tx_ref %q for receipt file name", d.TxRef)
	}

	currency := d.Currency
	if currency == "" {
		currency = "ETB"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment receipt "+d.TxRef, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(190, 10, "Travel Booking Receipt")
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		fmt.Sprintf("Transaction: %s", d.TxRef),
		fmt.Sprintf("Booking: #%d", d.BookingID),
		fmt.Sprintf("Date: %s", d.PaidAt.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("Guest: %s <%s>", d.GuestName, d.GuestEmail),
		fmt.Sprintf("Stay: %s (%s to %s)", d.ListingName,
			d.StartDate.Format("2006-01-02"), d.EndDate.Format("2006-01-02")),
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range lines {
		pdf.Cell(190, 10, tr(line))
		pdf.Ln(10)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(190, 10, fmt.Sprintf("Amount paid: %s %s", d.Amount.StringFixed(2), currency))

	path := g.Path(d.TxRef)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}

	util.ReceiptsGeneratedTotal.Inc()
	g.logger.Info("Receipt generated",
		zap.Int64("booking_id", d.BookingID),
		zap.String("tx_ref", d.TxRef),
		zap.String("path", path))

	return path, nil
}

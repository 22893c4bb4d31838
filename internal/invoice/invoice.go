// Package invoice renders PDF receipts for orders and stores them where the
// shop serves them from.
package invoice

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Druid-alpha/shoplux-BE/internal/domain"
)

// PathPrefix is the URL path invoices are served under.
const PathPrefix = "/invoices/"

type Writer struct {
	dir      string
	baseURL  string
	currency string
}

func NewWriter(dir, publicBaseURL, currency string) *Writer {
	return &Writer{
		dir:      dir,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		currency: currency,
	}
}

func FileName(orderID string) string {
	return "invoice-" + orderID + ".pdf"
}

// Emit renders the invoice and returns its public URL. The file appears
// under its final name only once it is complete, so a rerun for the same
// order replaces it atomically.
func (w *Writer) Emit(ctx context.Context, order *domain.Order) (string, error) {
	_, span := otel.Tracer("github.com/Druid-alpha/shoplux-BE/internal/invoice").Start(ctx, "invoice.emit")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("create invoice dir: %w", err)
	}

	name := FileName(order.ID)
	if err := w.write(name, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return w.baseURL + PathPrefix + name, nil
}

func (w *Writer) write(name string, order *domain.Order) error {
	tmp, err := os.CreateTemp(w.dir, ".invoice-*")
	if err != nil {
		return fmt.Errorf("create temp invoice: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Render(tmp, order, w.currency); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close invoice: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.dir, name)); err != nil {
		return fmt.Errorf("publish invoice: %w", err)
	}
	return nil
}

// Render writes the PDF receipt for order to out.
func Render(out io.Writer, order *domain.Order, currency string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+order.ID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Invoice", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "Order ID: "+order.ID, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Date: "+order.CreatedAt.Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Status: "+string(order.Status), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(90, 8, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Unit", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range order.Items {
		title := line.Title
		if sku, ok := line.Variant.SKU(); ok {
			title += " (" + sku + ")"
		}
		pdf.CellFormat(90, 8, title, "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", line.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, Money(line.PriceAtPurchase, currency), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, Money(line.Subtotal(), currency), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(145, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, Money(order.TotalAmount, currency), "T", 1, "R", false, 0, "")

	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("render invoice %s: %w", order.ID, err)
	}
	return nil
}

// Money formats an amount held in minor units.
func Money(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, currency, minor/100, minor%100)
}

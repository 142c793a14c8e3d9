// Package export formats ledger entries as CSV and bundles receipt files
// into ZIP archives.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/khushigoyal02/EMS-back/internal/model"
)

// ErrInvalidName is returned for receipt names that are not a plain file
// name inside the receipts directory.
var ErrInvalidName = errors.New("invalid receipt file name")

// ErrReceiptNotFound is returned when a requested receipt file does not exist.
var ErrReceiptNotFound = errors.New("receipt not found")

// ReceiptExt is the extension of stored receipts, named <transaction id>.pdf.
const ReceiptExt = ".pdf"

var csvHeader = []string{"id", "userName", "eventName", "type", "amount", "method", "status", "createdAt", "flagged"}

// WriteTransactionsCSV writes a header row and one row per entry.
func WriteTransactionsCSV(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		row := []string{
			t.ID,
			t.UserName,
			t.EventName,
			t.Type,
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
			t.Method,
			t.Status,
			t.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(t.IsFlagged()),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Receipts reads receipt files from one directory.
type Receipts struct {
	dir string
}

// NewReceipts returns a Receipts rooted at dir.
func NewReceipts(dir string) *Receipts {
	return &Receipts{dir: dir}
}

// Path resolves a single receipt file name to its location on disk.
func (r *Receipts) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ReceiptExt) {
		return "", ErrInvalidName
	}
	p := filepath.Join(r.dir, name)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", ErrReceiptNotFound
	}
	return p, nil
}

// WriteZip streams a ZIP archive holding the receipt of every entry that has
// one on disk. Entries without a receipt are skipped. It returns how many
// files were added.
func (r *Receipts) WriteZip(w io.Writer, txs []model.Transaction) (int, error) {
	zw := zip.NewWriter(w)
	added := 0
	for _, t := range txs {
		name := t.ID + ReceiptExt
		p, err := r.Path(name)
		if err != nil {
			continue
		}
		if err := addFile(zw, p, name); err != nil {
			_ = zw.Close()
			return added, err
		}
		added++
	}
	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("finish zip: %w", err)
	}
	return added, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open receipt: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat receipt: %w", err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header: %w", err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip entry: %w", err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("copy receipt: %w", err)
	}
	return nil
}

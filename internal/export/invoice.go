// Package export renders order invoices as HTML and, when a headless Chrome
// is available, converts them to PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"
)

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the PDF runtime dependency is unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Invoice holds the data rendered into an order invoice.
type Invoice struct {
	OrderID     int64
	ClientName  string
	ClientEmail string
	PlacedAt    time.Time
	Lines       []InvoiceLine
	TotalAmount float64
}

// InvoiceLine is one ordered book as it was priced at order time.
type InvoiceLine struct {
	TitleHi  string
	TitleEn  string
	Price    float64
	Quantity int
	Total    float64
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"inr": func(amount float64) string {
		return fmt.Sprintf("₹%.2f", amount)
	},
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(invoiceHTML))

const invoiceHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Invoice #{{.OrderID}}</title>
<style>
  body { font-family: 'Noto Sans', 'Noto Sans Devanagari', sans-serif; color: #222; margin: 2em; }
  h1 { font-size: 1.4em; border-bottom: 2px solid #b5452a; padding-bottom: 0.3em; }
  table { width: 100%; border-collapse: collapse; margin-top: 1.5em; }
  th, td { text-align: left; padding: 0.5em 0.75em; border-bottom: 1px solid #ddd; }
  th { background: #faf3ec; }
  td.amount, th.amount { text-align: right; }
  .meta { color: #666; margin-top: 0.5em; }
  .total td { font-weight: bold; border-top: 2px solid #b5452a; }
  .hindi { color: #555; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Invoice #{{.OrderID}}</h1>
<p class="meta">
  {{.ClientName}} &lt;{{.ClientEmail}}&gt;<br>
  Placed on {{formatDate .PlacedAt "2 January 2006, 15:04 MST"}}
</p>
<table>
  <thead>
    <tr><th>Book</th><th class="amount">Price</th><th class="amount">Qty</th><th class="amount">Total</th></tr>
  </thead>
  <tbody>
    {{range .Lines}}
    <tr>
      <td>{{.TitleEn}}<br><span class="hindi">{{.TitleHi}}</span></td>
      <td class="amount">{{inr .Price}}</td>
      <td class="amount">{{.Quantity}}</td>
      <td class="amount">{{inr .Total}}</td>
    </tr>
    {{end}}
    <tr class="total">
      <td colspan="3">Grand total</td>
      <td class="amount">{{inr .TotalAmount}}</td>
    </tr>
  </tbody>
</table>
</body>
</html>
`

// RenderInvoiceHTML renders the invoice template.
func RenderInvoiceHTML(inv Invoice) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, inv); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return buf.String(), nil
}

// InvoicePDF renders the invoice and converts it to PDF via headless Chrome.
func InvoicePDF(inv Invoice) (*Result, error) {
	html, err := RenderInvoiceHTML(inv)
	if err != nil {
		return nil, err
	}
	return exportPDF(html, fmt.Sprintf("invoice-%d", inv.OrderID))
}

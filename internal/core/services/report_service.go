package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"github.com/go-pdf/fpdf"
	jsoniter "github.com/json-iterator/go"
)

// Report errors
var (
	ErrUnknownReport = errors.New("unknown report table")
	ErrUnknownFormat = errors.New("unknown report format")
)

// ReportFormat is an export file format
type ReportFormat string

const (
	FormatCSV  ReportFormat = "csv"
	FormatJSON ReportFormat = "json"
	FormatPDF  ReportFormat = "pdf"
)

// ParseReportFormat validates a format name; empty means CSV
func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatPDF:
		return f, nil
	default:
		return "", ErrUnknownFormat
	}
}

// ContentType returns the MIME type of the format
func (f ReportFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ReportTables lists the exportable tables
var ReportTables = []string{"members", "items", "loans", "reservations"}

// ReportService exports library tables
type ReportService struct {
	repos  *repositories.Repositories
	policy *PolicyService
	now    func() time.Time
}

// NewReportService creates a new report service
func NewReportService(repos *repositories.Repositories, policy *PolicyService) *ReportService {
	return &ReportService{repos: repos, policy: policy, now: time.Now}
}

// report is a table ready to render
type report struct {
	title   string
	headers []string
	rows    [][]string
	records interface{}
}

// Filename returns the suggested download name
func (s *ReportService) Filename(table string, format ReportFormat) string {
	return fmt.Sprintf("%s_%s.%s", table, s.now().UTC().Format("20060102"), format)
}

// Export writes table in format to w
func (s *ReportService) Export(ctx context.Context, actor domain.Actor, table string, format ReportFormat, w io.Writer) error {
	if !actor.Can(domain.CapViewReports) {
		return domain.ErrForbidden
	}

	rep, err := s.build(ctx, table)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		return jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(rep.records)
	case FormatPDF:
		return writePDF(w, rep)
	case FormatCSV:
		return writeCSV(w, rep)
	default:
		return ErrUnknownFormat
	}
}

func (s *ReportService) build(ctx context.Context, table string) (*report, error) {
	switch table {
	case "members":
		members, err := s.repos.Members.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		rep := &report{
			title:   "Members",
			headers: []string{"ID", "First name", "Last name", "Email", "Phone", "Class", "Status", "Registered"},
			records: members,
		}
		for _, m := range members {
			rep.rows = append(rep.rows, []string{
				formatID(m.ID), m.FirstName, m.LastName, m.Email, m.Phone, m.ClassGroup, m.Status, formatDate(m.RegisteredAt),
			})
		}
		return rep, nil

	case "items":
		items, err := s.repos.Items.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		rep := &report{
			title:   "Catalog",
			headers: []string{"ID", "Title", "Author", "ISBN", "Year", "Category", "Available"},
			records: items,
		}
		for _, i := range items {
			isbn := ""
			if i.ISBN != nil {
				isbn = *i.ISBN
			}
			rep.rows = append(rep.rows, []string{
				formatID(i.ID), i.Title, i.Author, isbn, strconv.Itoa(i.PublicationYear), i.Category, strconv.FormatBool(i.Available),
			})
		}
		return rep, nil

	case "loans":
		loans, err := s.repos.Loans.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		policy, err := s.policy.Current(ctx)
		if err != nil {
			return nil, err
		}
		refreshLoans(loans, s.now().UTC(), policy.DailyFineRate)

		rep := &report{
			title:   "Loans",
			headers: []string{"ID", "Member", "Item", "Borrowed", "Due", "Returned", "Renewals", "Fine", "Fine settled"},
			records: loans,
		}
		for _, l := range loans {
			rep.rows = append(rep.rows, []string{
				formatID(l.ID), memberName(l.Member, l.MemberID), itemTitle(l.Item, l.ItemID),
				formatDate(l.BorrowedAt), formatDate(l.DueAt), formatDatePtr(l.ReturnedAt),
				strconv.Itoa(l.Renewals), l.Fine.StringFixed(2), formatDatePtr(l.FineSettledAt),
			})
		}
		return rep, nil

	case "reservations":
		reservations, err := s.repos.Reservations.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		rep := &report{
			title:   "Reservations",
			headers: []string{"ID", "Member", "Item", "Reserved", "Status", "Resolved"},
			records: reservations,
		}
		for _, r := range reservations {
			rep.rows = append(rep.rows, []string{
				formatID(r.ID), memberName(r.Member, r.MemberID), itemTitle(r.Item, r.ItemID),
				formatDate(r.ReservedAt), r.Status, formatDatePtr(r.ResolvedAt),
			})
		}
		return rep, nil

	default:
		return nil, ErrUnknownReport
	}
}

// writeCSV renders with encoding/csv
func writeCSV(w io.Writer, rep *report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rep.headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rep.rows); err != nil {
		return err
	}
	return cw.Error()
}

// writePDF renders a landscape A4 table
func writePDF(w io.Writer, rep *report) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(rep.title, true)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(rep.title), "", 1, "L", false, 0, "")

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := (pageWidth - left - right) / float64(len(rep.headers))

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range rep.headers {
			pdf.CellFormat(width, 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range rep.rows {
		if pdf.GetY()+6 > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		for _, cell := range row {
			pdf.CellFormat(width, 6, fit(pdf, tr(cell), width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

// fit shortens text to the cell width
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	// s is already in the single-byte font encoding
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func formatID(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func memberName(m *models.Member, fallback uint) string {
	if m == nil {
		return "#" + formatID(fallback)
	}
	return m.FullName()
}

func itemTitle(i *models.Item, fallback uint) string {
	if i == nil {
		return "#" + formatID(fallback)
	}
	return i.Title
}

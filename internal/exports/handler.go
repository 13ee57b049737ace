package exports

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lead_rotation_backend/platform/apperr"
	"lead_rotation_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	defaultTimezone = "UTC"
	dateLayout      = "2006-01-02"
	defaultLimit    = 5000
	maxLimit        = 50000
	defaultDays     = 90
)

// Handler streams assignment history as CSV.
type Handler struct {
	reader Reader
	now    func() time.Time
}

func NewHandler(reader Reader) *Handler {
	return &Handler{reader: reader, now: time.Now}
}

// ExportAssignmentsCSV writes the tenant's assignments as CSV.
// GET /api/v1/rotation/assignments/export.csv?fromDate=&toDate=&timezone=&limit=
// Dates are whole days in the requested timezone; toDate is inclusive.
func (h *Handler) ExportAssignmentsCSV(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	location, ok := parseTimezone(c)
	if !ok {
		return
	}

	from, to, err := parseDateRange(c, h.now().In(location), location)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid date range").WithDetails(err.Error()))
		return
	}

	rows, err := h.reader.ListAssignments(c.Request.Context(), tenantID, from, to, parseLimit(c, defaultLimit, maxLimit))
	if httpkit.HandleError(c, err) {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=assignments-%s-%s.csv",
		from.Format(dateLayout), to.Add(-time.Nanosecond).Format(dateLayout)))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write(csvHeaders()); err != nil {
		return
	}
	for _, row := range rows {
		if err := writer.Write(rowCSV(row, location)); err != nil {
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = c.Error(err)
	}
}

// ---- Helpers ----

func csvHeaders() []string {
	return []string{
		"Assigned At",
		"Lead ID",
		"Vendor ID",
		"Vendor",
		"Pipeline",
		"Stage",
		"Origin",
		"Event ID",
	}
}

func rowCSV(r Row, location *time.Location) []string {
	origin := ""
	if r.Origin != nil {
		origin = *r.Origin
	}
	return []string{
		r.AssignedAt.In(location).Format(time.RFC3339),
		r.LeadID.String(),
		r.VendorID.String(),
		r.VendorName,
		r.PipelineName,
		r.StageName,
		origin,
		r.EventID.String(),
	}
}

func parseTimezone(c *gin.Context) (*time.Location, bool) {
	tzName := strings.TrimSpace(c.DefaultQuery("timezone", defaultTimezone))
	location, err := time.LoadLocation(tzName)
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid timezone"))
		return nil, false
	}
	return location, true
}

// parseDateRange returns [from, to) where to is the midnight after toDate.
func parseDateRange(c *gin.Context, now time.Time, location *time.Location) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, location)
	from := today.AddDate(0, 0, -defaultDays)
	to := today.AddDate(0, 0, 1)

	if raw := strings.TrimSpace(c.Query("fromDate")); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, location)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := strings.TrimSpace(c.Query("toDate")); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, location)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("toDate before fromDate")
	}
	return from, to, nil
}

func parseLimit(c *gin.Context, fallback int, max int) int {
	limit := fallback
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit > max {
		return max
	}
	if limit < 1 {
		return fallback
	}
	return limit
}

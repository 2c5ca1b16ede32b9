package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"donation-service/internal/billing"
	"donation-service/internal/domain"
	"donation-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type donorRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	PAN       string `json:"pan"`
	Address   string `json:"address"`
	Anonymous bool   `json:"anonymous"`
}

func (d donorRequest) toDonor() domain.Donor {
	return domain.Donor{
		Name:      strings.TrimSpace(d.Name),
		Email:     strings.TrimSpace(d.Email),
		Phone:     d.Phone,
		PAN:       strings.ToUpper(strings.TrimSpace(d.PAN)),
		Address:   d.Address,
		Anonymous: d.Anonymous,
	}
}

type donationRequest struct {
	Donor      donorRequest    `json:"donor"`
	Amount     decimal.Decimal `json:"amount"`
	CampaignID string          `json:"campaign_id"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func CreateDonation(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req donationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		p, order, err := svc.Payments.CreateDonation(c.Request.Context(), actorFrom(c), service.DonationRequest{
			Donor:      req.Donor.toDonor(),
			Amount:     req.Amount,
			CampaignID: req.CampaignID,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"payment":      service.NewPaymentView(*p),
			"order_id":     order.OrderID,
			"token":        order.Token,
			"redirect_url": order.RedirectURL,
		})
	}
}

func GetPayment(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Payments.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewPaymentView(*p))
	}
}

func CapturePayment(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Payments.Capture(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewPaymentView(*p))
	}
}

func RefundPayment(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		p, err := svc.Refunds.Refund(c.Request.Context(), actorFrom(c), service.RefundRequest{
			PaymentID: c.Param("id"),
			Amount:    req.Amount,
			Reason:    req.Reason,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewPaymentView(*p))
	}
}

func ListPayments(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := paymentFilter(c)
		if err != nil {
			respondError(c, err)
			return
		}
		page, err := pageParams(c)
		if err != nil {
			respondError(c, err)
			return
		}

		list, err := svc.Queries.ListPayments(c.Request.Context(), actorFrom(c), service.PaymentQuery{Filter: filter, Page: page})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func paymentFilter(c *gin.Context) (domain.PaymentFilter, error) {
	f := domain.PaymentFilter{
		CampaignID:     c.Query("campaign_id"),
		SubscriptionID: c.Query("subscription_id"),
		DonorEmail:     c.Query("donor_email"),
		Search:         c.Query("q"),
	}
	for _, raw := range splitList(c.Query("status")) {
		st := domain.PaymentStatus(raw)
		if !st.Valid() {
			return f, fmt.Errorf("%w: unknown payment status %q", domain.ErrValidation, raw)
		}
		f.Statuses = append(f.Statuses, st)
	}
	from, err := parseDate(c.Query("from"), false)
	if err != nil {
		return f, err
	}
	to, err := parseDate(c.Query("to"), true)
	if err != nil {
		return f, err
	}
	f.From, f.To = from, to
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day in IST.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, billing.IST)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", domain.ErrValidation, raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func pageParams(c *gin.Context) (domain.Page, error) {
	var page domain.Page
	for key, dst := range map[string]*int{"page": &page.Number, "page_size": &page.Size} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, key)
		}
		*dst = n
	}
	return page.Normalize(), nil
}

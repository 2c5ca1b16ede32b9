package api

import (
	"fmt"
	"net/http"

	"donation-service/internal/domain"
	"donation-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type subscriptionRequest struct {
	Donor           donorRequest     `json:"donor"`
	CampaignID      string           `json:"campaign_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Frequency       domain.Frequency `json:"frequency"`
	FirstChargeDate string           `json:"first_charge_date"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func CreateSubscription(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		first, err := parseDate(req.FirstChargeDate, false)
		if err != nil {
			respondError(c, err)
			return
		}

		sub, err := svc.Subscriptions.Create(c.Request.Context(), actorFrom(c), service.SubscriptionRequest{
			Donor:           req.Donor.toDonor(),
			CampaignID:      req.CampaignID,
			Amount:          req.Amount,
			Frequency:       req.Frequency,
			FirstChargeDate: first,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, service.NewSubscriptionView(*sub, svc.now()))
	}
}

func GetSubscription(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Subscriptions.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewSubscriptionView(*sub, svc.now()))
	}
}

func PauseSubscription(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Subscriptions.Pause(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewSubscriptionView(*sub, svc.now()))
	}
}

func ResumeSubscription(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.Subscriptions.Resume(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewSubscriptionView(*sub, svc.now()))
	}
}

func CancelSubscription(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelRequest
		// The body is optional.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err)
				return
			}
		}

		sub, err := svc.Subscriptions.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.NewSubscriptionView(*sub, svc.now()))
	}
}

func ListSubscriptions(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := domain.SubscriptionFilter{
			CampaignID: c.Query("campaign_id"),
			DonorEmail: c.Query("donor_email"),
			Search:     c.Query("q"),
		}
		for _, raw := range splitList(c.Query("status")) {
			st := domain.SubscriptionStatus(raw)
			if !st.Valid() {
				respondError(c, fmt.Errorf("%w: unknown subscription status %q", domain.ErrValidation, raw))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
		page, err := pageParams(c)
		if err != nil {
			respondError(c, err)
			return
		}

		list, err := svc.Queries.ListSubscriptions(c.Request.Context(), actorFrom(c), service.SubscriptionQuery{Filter: filter, Page: page})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// ChargeDue runs one scheduler pass. Admin only.
func ChargeDue(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).IsAdmin() {
			respondError(c, fmt.Errorf("%w: only admins can run the charge scheduler", domain.ErrForbidden))
			return
		}
		report, err := svc.Scheduler.ChargeDue(c.Request.Context(), svc.now())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

package api

import (
	"fmt"
	"net/http"

	"donation-service/internal/document"
	"donation-service/internal/domain"

	"github.com/gin-gonic/gin"
)

func documentJSON(doc *document.Document) gin.H {
	return gin.H{
		"kind":         doc.Kind,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"content":      doc.Base64(),
		"generated_at": doc.GeneratedAt,
	}
}

// writeDocument returns the document inline when format=html is requested and
// as base64 JSON otherwise.
func writeDocument(c *gin.Context, doc *document.Document, extra gin.H) {
	if c.Query("format") == "html" {
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
		c.Data(http.StatusOK, doc.ContentType, doc.Content)
		return
	}
	body := gin.H{"document": documentJSON(doc)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func GetReceipt(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svc.Documents.Receipt(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		writeDocument(c, doc, nil)
	}
}

func IssueCertificate(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		cert, doc, err := svc.Documents.IssueTaxCertificate(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		writeDocument(c, doc, certificateJSON(cert))
	}
}

func ReissueCertificate(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		cert, doc, err := svc.Documents.ReissueTaxCertificate(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		writeDocument(c, doc, certificateJSON(cert))
	}
}

func certificateJSON(cert *domain.TaxCertificate) gin.H {
	return gin.H{"certificate": cert, "verification_url": cert.VerificationURL()}
}

// VerifyCertificate is public so third parties can check a certificate they
// were handed.
func VerifyCertificate(svc *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Documents.VerifyCertificate(c.Request.Context(), c.Param("number"), c.Query("payment"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"valid":             !v.Superseded && v.Status == domain.PaymentCompleted,
			"certificate":       v.Certificate.CertificateNumber,
			"financial_year":    v.Certificate.FinancialYear,
			"deductible_amount": v.Certificate.DeductibleAmount,
			"issued_at":         v.Certificate.IssuedAt,
			"payment_id":        v.PaymentID,
			"payment_status":    v.Status,
			"superseded":        v.Superseded,
		})
	}
}

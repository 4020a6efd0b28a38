// Package adhoc sends single transactional emails synchronously: product
// delist notices and one-off custom outreach. Unlike the bulk pipeline there
// is no queue; the caller waits for the send.
package adhoc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trybemarket/bulkmail/internal/email"
	"github.com/trybemarket/bulkmail/internal/models"
	"github.com/trybemarket/bulkmail/internal/render"
)

// ErrInvalidRequest marks submission errors the caller can fix: unknown
// template IDs and missing fields.
var ErrInvalidRequest = errors.New("invalid ad-hoc send request")

const (
	TemplateProductDelist  = "PRODUCT_DELIST"
	TemplateCustomOutreach = "CUSTOM_OUTREACH"
)

// Lookup is the slice of the store the delist template needs to address the
// seller.
type Lookup interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Sender delivers one message, retrying transient failures within the
// window.
type Sender interface {
	SendWithRetry(ctx context.Context, msg email.Message, maxElapsed time.Duration) error
}

type Request struct {
	TemplateID    string `json:"templateId"`
	ProductID     string `json:"productId,omitempty"`
	DelistReason  string `json:"delistReason,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	CustomSubject string `json:"customSubject,omitempty"`
	CustomBody    string `json:"customBody,omitempty"`
	AdminName     string `json:"adminName"`
}

type Result struct {
	MessageID string `json:"messageId"`
}

type Service struct {
	Store       Lookup
	Renderer    *render.Renderer
	Sender      Sender
	RetryWindow time.Duration
	Log         *zap.Logger
}

func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	var (
		to      string
		toName  string
		subject string
		html    string
		err     error
	)

	switch req.TemplateID {
	case TemplateProductDelist:
		to, toName, subject, html, err = s.buildDelist(ctx, req)
	case TemplateCustomOutreach:
		to, toName, subject, html, err = s.buildOutreach(req)
	default:
		return nil, fmt.Errorf("%w: unknown templateId %q", ErrInvalidRequest, req.TemplateID)
	}
	if err != nil {
		return nil, err
	}

	msg := email.Message{
		To:        to,
		ToName:    toName,
		Subject:   subject,
		HTML:      html,
		MessageID: fmt.Sprintf("<%s@trybemarket.com>", uuid.NewString()),
	}

	if err := s.Sender.SendWithRetry(ctx, msg, s.RetryWindow); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.TemplateID, err)
	}

	s.Log.Info("ad-hoc email sent",
		zap.String("template", req.TemplateID),
		zap.String("to", to),
		zap.String("message_id", msg.MessageID),
	)

	return &Result{MessageID: msg.MessageID}, nil
}

func (s *Service) buildDelist(ctx context.Context, req Request) (string, string, string, string, error) {
	if req.ProductID == "" || req.DelistReason == "" || req.AdminName == "" {
		return "", "", "", "", fmt.Errorf("%w: missing productId, delistReason or adminName", ErrInvalidRequest)
	}

	product, err := s.Store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return "", "", "", "", fmt.Errorf("lookup product: %w", err)
	}

	seller, err := s.Store.GetUser(ctx, product.UserID)
	if err != nil {
		return "", "", "", "", fmt.Errorf("lookup seller: %w", err)
	}

	html, err := s.Renderer.ProductDelist(render.DelistData{
		UserName:     seller.FullName,
		ProductName:  product.Name,
		ProductBrand: product.Brand,
		ProductPrice: strconv.FormatFloat(product.Price, 'f', 2, 64),
		DelistReason: req.DelistReason,
		AdminName:    req.AdminName,
	})
	if err != nil {
		return "", "", "", "", err
	}

	subject := fmt.Sprintf("Important: Your Product %s Has Been Delisted", product.Name)
	return seller.Email, seller.FullName, subject, html, nil
}

func (s *Service) buildOutreach(req Request) (string, string, string, string, error) {
	if req.Recipient == "" || req.CustomSubject == "" || req.CustomBody == "" || req.AdminName == "" {
		return "", "", "", "", fmt.Errorf("%w: missing recipient, customSubject, customBody or adminName", ErrInvalidRequest)
	}

	html, err := s.Renderer.CustomOutreach(req.CustomBody, req.AdminName)
	if err != nil {
		return "", "", "", "", err
	}

	return req.Recipient, "", req.CustomSubject, html, nil
}

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsletterShell(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	shell, err := r.Newsletter("<p>Big news</p>", "Ada")
	require.NoError(t, err)

	// Admin-authored HTML passes through unescaped; the recipient name stays
	// a placeholder for send-time substitution.
	assert.Contains(t, shell, "<p>Big news</p>")
	assert.Contains(t, shell, UserNamePlaceholder)
	assert.Contains(t, shell, "Ada")
}

func TestPersonalize(t *testing.T) {
	shell := "Hello " + UserNamePlaceholder + "!"

	assert.Equal(t, "Hello Grace Hopper!", Personalize(shell, "Grace Hopper"))
	assert.Equal(t, "Hello there!", Personalize(shell, ""))
}

func TestProductDelist(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.ProductDelist(DelistData{
		UserName:     "Bob",
		ProductName:  "Vintage Lamp",
		ProductBrand: "Lumo",
		ProductPrice: "120.00",
		DelistReason: "prohibited item",
		AdminName:    "Ada",
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Bob")
	assert.Contains(t, html, "Vintage Lamp")
	assert.Contains(t, html, "prohibited item")
	assert.NotContains(t, html, UserNamePlaceholder)
}

func TestCustomOutreach(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.CustomOutreach("<p>Quick question</p>", "Ada")
	require.NoError(t, err)

	assert.Contains(t, html, "<p>Quick question</p>")
	assert.Contains(t, html, "Ada")
}

// Package onramp builds the fiat purchase link and the provider record shown
// by the wallet modal.
//
// Build is pure: given the same parameters and session it returns the same
// URL byte for byte. Query parameters are emitted in a fixed order rather
// than through url.Values.Encode, which sorts keys.
package onramp

import (
	"net/url"
	"strings"

	"moff.io/wallet-bridge/internal/chains"
)

const (
	DefaultBaseURL   = "https://meldcrypto.com"
	DefaultPublicKey = "WXETMuFUQmqqybHuRkSgxv:25B8LJHSfpG6LVjR2ytU5Cwh7Z4Sch2ocoU"

	providerLabel    = "Meld.io"
	providerName     = "meld"
	providerFeeRange = "1-2%"

	defaultEVMCurrency    = "USDC"
	defaultSolanaCurrency = "SOL"
)

// PurchaseParameters are caller overrides. An empty field is absent.
type PurchaseParameters struct {
	CountryCode             string `json:"countryCode,omitempty" form:"countryCode"`
	Country                 string `json:"country,omitempty" form:"country"`
	SourceCurrencyCode      string `json:"sourceCurrencyCode,omitempty" form:"sourceCurrencyCode"`
	DestinationCurrencyCode string `json:"destinationCurrencyCode,omitempty" form:"destinationCurrencyCode"`
	WalletAddress           string `json:"walletAddress,omitempty" form:"walletAddress"`
	Amount                  string `json:"amount,omitempty" form:"amount"`
	PaymentMethod           string `json:"paymentMethod,omitempty" form:"paymentMethod"`
	Language                string `json:"language,omitempty" form:"language"`
	Locale                  string `json:"locale,omitempty" form:"locale"`
}

// SessionState is the wallet session as read at call time. Empty fields are
// absent.
type SessionState struct {
	ActiveNamespace   string `json:"activeChain,omitempty"`
	ConnectedAddress  string `json:"address,omitempty"`
	SelectedNetworkID string `json:"selectedNetworkId,omitempty"`
}

// ProviderDescriptor has the same shape as the modal's built-in on-ramp
// providers.
type ProviderDescriptor struct {
	Label           string   `json:"label"`
	Name            string   `json:"name"`
	FeeRange        string   `json:"feeRange"`
	URL             string   `json:"url"`
	SupportedChains []string `json:"supportedChains"`
}

// Builder holds the provider endpoint and issuer key. The zero value uses
// DefaultBaseURL and DefaultPublicKey.
type Builder struct {
	BaseURL   string
	PublicKey string
}

var defaultBuilder Builder

// Build uses the default endpoint and key.
func Build(params PurchaseParameters, session SessionState) (ProviderDescriptor, *url.URL) {
	return defaultBuilder.Build(params, session)
}

func (b Builder) Build(params PurchaseParameters, session SessionState) (ProviderDescriptor, *url.URL) {
	activeChain := firstOf(session.ActiveNamespace, chains.NamespaceEVM)

	destinationCurrencyCode := params.DestinationCurrencyCode
	if destinationCurrencyCode == "" {
		if activeChain == chains.NamespaceSolana {
			destinationCurrencyCode = defaultSolanaCurrency
		} else {
			destinationCurrencyCode = defaultEVMCurrency
		}
	}
	walletAddress := firstOf(params.WalletAddress, session.ConnectedAddress)
	externalCustomerID := session.SelectedNetworkID

	var q query
	q.add("publicKey", firstOf(b.PublicKey, DefaultPublicKey))
	q.add("destinationCurrencyCode", destinationCurrencyCode)
	q.add("walletAddress", walletAddress)
	q.add("externalCustomerId", externalCustomerID)

	q.addIf(params.CountryCode, "countryCode", "region")
	q.addIf(params.Country, "country")
	q.addIf(params.SourceCurrencyCode, "sourceCurrencyCode")
	q.addIf(params.Amount, "amount", "defaultAmount")
	q.addIf(params.PaymentMethod, "paymentMethod", "defaultPaymentMethod")
	q.addIf(params.Language, "language")
	q.addIf(params.Locale, "locale")

	u := b.base()
	u.RawQuery = q.String()

	return ProviderDescriptor{
		Label:           providerLabel,
		Name:            providerName,
		FeeRange:        providerFeeRange,
		URL:             u.String(),
		SupportedChains: []string{chains.NamespaceEVM, chains.NamespaceSolana},
	}, u
}

// base parses the configured endpoint. A malformed value falls back to the
// default so that a link can always be produced; config validation rejects
// such values earlier.
func (b Builder) base() *url.URL {
	u, err := url.Parse(firstOf(b.BaseURL, DefaultBaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		u, _ = url.Parse(DefaultBaseURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u
}

// query keeps insertion order.
type query struct {
	b strings.Builder
}

func (q *query) add(key, value string) {
	if q.b.Len() > 0 {
		q.b.WriteByte('&')
	}
	q.b.WriteString(formEscape(key))
	q.b.WriteByte('=')
	q.b.WriteString(formEscape(value))
}

// formEscape applies the application/x-www-form-urlencoded byte set used by
// browsers: '*' stays literal and '~' is percent-encoded, unlike QueryEscape.
func formEscape(s string) string {
	return formFixups.Replace(url.QueryEscape(s))
}

var formFixups = strings.NewReplacer("~", "%7E", "%2A", "*")

// addIf sets every key to value, or nothing when value is absent.
func (q *query) addIf(value string, keys ...string) {
	if value == "" {
		return
	}
	for _, k := range keys {
		q.add(k, value)
	}
}

func (q *query) String() string {
	return q.b.String()
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

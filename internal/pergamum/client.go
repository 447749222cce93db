// client.go contains the session logic for the Pergamum mobile catalog, it knows
// nothing about which loans should be renewed.

package pergamum

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"bibrenew/internal/components/assert"
	"bibrenew/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	report_client_login   = "client.login"
	report_client_listing = "client.listing"
	report_client_renew   = "client.renew"
)

const (
	loginPath   = "/pergamum/mobile/login.php"
	listingPath = "/pergamum/mobile/renovacao.php"
	renewPath   = "/pergamum/mobile/confirmar_renovacao.php"
)

// the catalog misbehaves when the mobile interface is in portuguese, 6 selects
// a language that renders the renewal page correctly.
const (
	languageCookie = "idioma_mobile_pessoal"
	languageValue  = "6"
)

type ClientOptions struct {
	BaseUrl  string
	Login    string
	Password string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// Output receives full request/response dumps when set.
	Output telemetry.InstrumentOutput
}

// Client is an authenticated session against the catalog. It is safe to use
// concurrently once Login returned.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	login    string
	password string
	tel      telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseUrl)

	tel = telemetry.NewScopedAPI("pergamum", tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("pergamum: base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(baseUrl, []*http.Cookie{{
		Name:  languageCookie,
		Value: languageValue,
		Path:  "/",
	}})

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl.String())
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (X11; Linux x86_64; rv:57.0) Gecko/20100101 Firefox/57.0")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	httpClient.SetTimeout(timeout)

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		BaseUrl:  baseUrl,
		Http:     httpClient,
		login:    opts.Login,
		password: opts.Password,
		tel:      tel,
	}, nil
}

func (c *Client) document(res *resty.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, &StatusError{
			Method: res.Request.Method,
			Url:    res.Request.URL,
			Status: res.StatusCode(),
		}
	}
	return res.Body(), nil
}

// Login authenticates the session. The catalog redirects a successful login to
// the renewal page, so the returned document is the loan listing.
func (c *Client) Login(ctx context.Context) ([]byte, error) {
	loginUrl := c.BaseUrl.JoinPath(loginPath)

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("Referer", fmt.Sprintf("%s?flag=renovacao.php", loginUrl.String())).
		SetFormData(map[string]string{
			"flag":     "renovacao.php",
			"login":    c.login,
			"password": c.password,
			"button":   "Acessar",
		}).
		Post(loginPath)
	doc, err := c.document(res, err)
	if err != nil {
		c.tel.ReportBroken(report_client_login, err)
		return nil, fmt.Errorf("pergamum: login: %w", err)
	}

	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse landing page: %w", err))
		return nil, fmt.Errorf("pergamum: login: %w", err)
	}
	// the login form is shown again when the credentials are rejected
	if parsed.Find("input[name=password]").Length() > 0 {
		c.tel.ReportWarning(report_client_login, "landing page still has the login form")
		return nil, ErrLoginFailed
	}

	return doc, nil
}

// Listing fetches the renewal page with the current loans.
func (c *Client) Listing(ctx context.Context) ([]byte, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(listingPath)
	doc, err := c.document(res, err)
	if err != nil {
		c.tel.ReportBroken(report_client_listing, err)
		return nil, fmt.Errorf("pergamum: listing: %w", err)
	}
	return doc, nil
}

// Renew asks the catalog to renew a single loan. A successful response does not
// mean the loan was renewed, only a fresh listing can tell.
func (c *Client) Renew(ctx context.Context, loan Loan) ([]byte, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cod_acervo":   strconv.Itoa(loan.ItemId),
			"cod_exemplar": strconv.Itoa(loan.CopyId),
		}).
		Get(renewPath)
	doc, err := c.document(res, err)
	if err != nil {
		c.tel.ReportBroken(report_client_renew, err, loan.Title, loan.Key())
		return nil, fmt.Errorf("pergamum: renew %q: %w", loan.Title, err)
	}
	return doc, nil
}

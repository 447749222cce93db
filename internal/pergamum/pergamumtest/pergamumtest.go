// Package pergamumtest provides an in-memory Pergamum mobile catalog for tests.
package pergamumtest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"bibrenew/internal/pergamum"
)

// RenderListing renders loans the way the renewal page does, including a
// divider and an empty trailing item.
func RenderListing(loans ...pergamum.Loan) []byte {
	var items strings.Builder
	items.WriteString(`<li data-role="list-divider">Empr&eacute;stimos</li>`)
	for _, loan := range loans {
		fmt.Fprintf(
			&items,
			`<li><a href="confirmar_renovacao.php?cod_acervo=%d&amp;cod_exemplar=%d" data-transition="slide">
				<h2>%s</h2>
				<p>Data de devolu&ccedil;&atilde;o: %02d/%02d/%04d</p>
				<p>Renova&ccedil;&otilde;es: %d</p>
			</a></li>`,
			loan.ItemId, loan.CopyId,
			html.EscapeString(loan.Title),
			loan.DueDate.Day, int(loan.DueDate.Month), loan.DueDate.Year,
			loan.RenewalCount,
		)
	}
	items.WriteString(`<li></li>`)

	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Pergamum Mobile</title></head>
<body>
<div data-role="page" id="renovacao">
	<div data-role="header"><h1>Renova&ccedil;&atilde;o</h1></div>
	<div data-role="content">
		<ul data-role="listview">%s</ul>
	</div>
</div>
</body>
</html>`, items.String()))
}

const loginForm = `<!DOCTYPE html>
<html><body><div><div>
<form method="post" action="login.php">
	<input type="text" name="login">
	<input type="password" name="password">
</form>
</div></div></body></html>`

// Behavior decides how the catalog reacts to a renewal request for a copy.
type Behavior int

const (
	// BehaviorRenew advances the due date by a week and increments the renewal count.
	BehaviorRenew Behavior = iota
	// BehaviorIgnore answers 200 but leaves the loan as it was.
	BehaviorIgnore
	// BehaviorFail answers 500.
	BehaviorFail
)

// Catalog is a fake catalog, all methods are safe for concurrent use.
type Catalog struct {
	Login    string
	Password string

	mutex      sync.Mutex
	loans      []pergamum.Loan
	behaviors  map[string]Behavior
	renewCalls map[string]int
	// listingStatus is returned by the renewal page once it is not 200.
	listingStatus int
	languages     []string
}

func NewCatalog(login, password string, loans ...pergamum.Loan) *Catalog {
	return &Catalog{
		Login:      login,
		Password:   password,
		loans:      loans,
		behaviors:  map[string]Behavior{},
		renewCalls: map[string]int{},
	}
}

// SetBehavior sets how renewals of the given loan's copy are handled.
func (c *Catalog) SetBehavior(loan pergamum.Loan, behavior Behavior) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.behaviors[loan.Key()] = behavior
}

// FailListing makes direct requests for the renewal page answer status.
func (c *Catalog) FailListing(status int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listingStatus = status
}

// Loans returns the current state of the catalog.
func (c *Catalog) Loans() []pergamum.Loan {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]pergamum.Loan(nil), c.loans...)
}

// RenewCalls returns how many times a renewal of the loan's copy was requested.
func (c *Catalog) RenewCalls(loan pergamum.Loan) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.renewCalls[loan.Key()]
}

// Languages returns the language cookie seen on each request.
func (c *Catalog) Languages() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.languages...)
}

func (c *Catalog) listing() []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return RenderListing(c.loans...)
}

func (c *Catalog) recordLanguage(r *http.Request) {
	value := ""
	cookie, err := r.Cookie("idioma_mobile_pessoal")
	if err == nil {
		value = cookie.Value
	}
	c.mutex.Lock()
	c.languages = append(c.languages, value)
	c.mutex.Unlock()
}

func (c *Catalog) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Write([]byte(loginForm))
		return
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("login") != c.Login ||
		r.PostForm.Get("password") != c.Password ||
		r.PostForm.Get("flag") != "renovacao.php" {
		w.Write([]byte(loginForm))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "session", Path: "/"})
	http.Redirect(w, r, "/pergamum/mobile/renovacao.php", http.StatusFound)
}

func loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie("PHPSESSID")
	return err == nil && cookie.Value == "session"
}

func (c *Catalog) handleListing(w http.ResponseWriter, r *http.Request) {
	if !loggedIn(r) {
		w.Write([]byte(loginForm))
		return
	}
	c.mutex.Lock()
	status := c.listingStatus
	c.mutex.Unlock()
	// the redirect right after login is always served, only later reads fail
	if status != 0 && r.Referer() == "" {
		http.Error(w, "unavailable", status)
		return
	}
	w.Write(c.listing())
}

func (c *Catalog) handleRenew(w http.ResponseWriter, r *http.Request) {
	if !loggedIn(r) {
		w.Write([]byte(loginForm))
		return
	}
	itemId, err := strconv.Atoi(r.URL.Query().Get("cod_acervo"))
	if err != nil {
		http.Error(w, "bad cod_acervo", http.StatusBadRequest)
		return
	}
	copyId, err := strconv.Atoi(r.URL.Query().Get("cod_exemplar"))
	if err != nil {
		http.Error(w, "bad cod_exemplar", http.StatusBadRequest)
		return
	}
	key := pergamum.Loan{ItemId: itemId, CopyId: copyId}.Key()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.renewCalls[key]++
	switch c.behaviors[key] {
	case BehaviorFail:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case BehaviorIgnore:
		w.Write([]byte(`<html><body><p>Renova&ccedil;&atilde;o efetuada</p></body></html>`))
		return
	}

	for i, loan := range c.loans {
		if loan.Key() != key {
			continue
		}
		loan.DueDate = loan.DueDate.AddDays(7)
		loan.RenewalCount++
		c.loans[i] = loan
	}
	w.Write([]byte(`<html><body><p>Renova&ccedil;&atilde;o efetuada</p></body></html>`))
}

// Handler serves the catalog's mobile pages.
func (c *Catalog) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/pergamum/mobile/login.php", c.handleLogin)
	mux.HandleFunc("/pergamum/mobile/renovacao.php", c.handleListing)
	mux.HandleFunc("/pergamum/mobile/confirmar_renovacao.php", c.handleRenew)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.recordLanguage(r)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		mux.ServeHTTP(w, r)
	})
}

// NewServer starts an httptest server for the catalog, the caller closes it.
func (c *Catalog) NewServer() *httptest.Server {
	return httptest.NewServer(c.Handler())
}

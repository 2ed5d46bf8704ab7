package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webfold/partialnav/internal/transport"
	"github.com/webfold/partialnav/internal/urlx"
)

// Post is one entry of the demo site's content.
type Post struct {
	ID    int
	Title string
	Body  string
}

// Handlers serves the demo site. Every content route answers twice: a full
// layout for plain requests, a bare fragment plus canonical-URL header for
// partial requests.
type Handlers struct {
	posts    []Post
	perPage  int
	maxDelay time.Duration
}

// NewHandlers creates the handler set over seeded demo content.
func NewHandlers() *Handlers {
	posts := make([]Post, 0, 9)
	for i := 1; i <= 9; i++ {
		posts = append(posts, Post{
			ID:    i,
			Title: fmt.Sprintf("Post %d", i),
			Body:  fmt.Sprintf("Body of post %d.", i),
		})
	}
	return &Handlers{posts: posts, perPage: 3, maxDelay: 5 * time.Second}
}

// partial reports whether the request asks for a fragment response.
func partial(c *gin.Context) bool {
	return c.GetHeader(transport.HeaderRequest) != ""
}

// render writes either the bare fragment or the full layout. Partial
// responses carry the canonical URL, stripped of the request marker.
func (h *Handlers) render(c *gin.Context, title, body string) {
	if partial(c) {
		c.Header(transport.HeaderCanonicalURL, urlx.Strip(c.Request.URL.RequestURI()))
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte(fmt.Sprintf("<title>%s</title>\n%s", title, body)))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(layout(title, body)))
}

func layout(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<nav>
  <a href="/">Home</a>
  <a href="/posts">Posts</a>
  <a href="/about">About</a>
</nav>
<div id="main">
%s
</div>
</body>
</html>`, title, body)
}

// Home serves the landing page.
func (h *Handlers) Home(c *gin.Context) {
	h.render(c, "Home", "<h1>Partial navigation demo</h1>\n<p>Pick a page from the nav.</p>")
}

// About serves the about page.
func (h *Handlers) About(c *gin.Context) {
	h.render(c, "About", "<h1>About</h1>\n<p>A small site for exercising partial navigation.</p>")
}

// Posts serves the paginated post index.
func (h *Handlers) Posts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * h.perPage
	if start >= len(h.posts) {
		c.String(http.StatusNotFound, "no such page")
		return
	}
	end := start + h.perPage
	if end > len(h.posts) {
		end = len(h.posts)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Posts, page %d</h1>\n<ul>\n", page)
	for _, p := range h.posts[start:end] {
		fmt.Fprintf(&b, `<li><a href="/posts/%d">%s</a></li>`+"\n", p.ID, p.Title)
	}
	b.WriteString("</ul>")
	if end < len(h.posts) {
		fmt.Fprintf(&b, "\n"+`<a href="/posts?page=%d">next</a>`, page+1)
	}
	h.render(c, fmt.Sprintf("Posts p%d", page), b.String())
}

// Post serves one post.
func (h *Handlers) Post(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 || id > len(h.posts) {
		c.String(http.StatusNotFound, "no such post")
		return
	}
	p := h.posts[id-1]
	h.render(c, p.Title, fmt.Sprintf("<h1>%s</h1>\n<p>%s</p>", p.Title, p.Body))
}

// Moved redirects to the about page, letting clients observe canonical-URL
// adoption after a redirect.
func (h *Handlers) Moved(c *gin.Context) {
	c.Redirect(http.StatusFound, "/about")
}

// Slow serves the home fragment after a client-chosen delay, for
// exercising timeout behavior.
func (h *Handlers) Slow(c *gin.Context) {
	delay, err := time.ParseDuration(c.DefaultQuery("delay", "1s"))
	if err != nil || delay < 0 || delay > h.maxDelay {
		c.String(http.StatusBadRequest, "bad delay")
		return
	}
	time.Sleep(delay)
	h.render(c, "Slow", "<h1>Slow</h1>\n<p>Worth the wait.</p>")
}

// Boom always fails.
func (h *Handlers) Boom(c *gin.Context) {
	c.String(http.StatusInternalServerError, "boom")
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

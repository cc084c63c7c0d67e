package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/relaylane/router/internal/logging"
)

// ===========================================================================
// WEB SEARCH TOOL
// ===========================================================================

// WebSearchTool searches the web using the Tavily API.
type WebSearchTool struct {
	apiKey            string
	httpClient        *http.Client
	cache             *searchCache
	dangerousPatterns []*regexp.Regexp
	log               *logging.Logger
}

// searchCache provides simple TTL-based caching to reduce API calls.
type searchCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	result    *TavilyResponse
	expiresAt time.Time
}

// ===========================================================================
// TAVILY API TYPES
// ===========================================================================

// TavilyRequest represents a request to the Tavily Search API.
type TavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"` // "basic" or "advanced"
	MaxResults     int      `json:"max_results"`
	IncludeAnswer  bool     `json:"include_answer"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// TavilyResponse represents the response from Tavily Search API.
type TavilyResponse struct {
	Answer  string         `json:"answer"`
	Query   string         `json:"query"`
	Results []TavilyResult `json:"results"`
}

// TavilyResult represents a single search result.
type TavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ===========================================================================
// CONSTRUCTOR AND OPTIONS
// ===========================================================================

// WebSearchOption configures the WebSearchTool.
type WebSearchOption func(*WebSearchTool)

// WithAPIKey sets the Tavily API key.
func WithAPIKey(key string) WebSearchOption {
	return func(w *WebSearchTool) {
		w.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WebSearchOption {
	return func(w *WebSearchTool) {
		w.httpClient = client
	}
}

// WithSearchLogger attaches a logger; callers that skip this option get a
// no-op logger.
func WithSearchLogger(log *logging.Logger) WebSearchOption {
	return func(w *WebSearchTool) {
		w.log = log
	}
}

// NewWebSearchTool creates a new web search tool.
func NewWebSearchTool(opts ...WebSearchOption) *WebSearchTool {
	w := &WebSearchTool{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache: &searchCache{
			entries: make(map[string]*cacheEntry),
			maxSize: 100,
			ttl:     5 * time.Minute,
		},
		log: logging.Nop(),
	}

	w.compileDangerousPatterns()

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// compileDangerousPatterns compiles regex patterns for content sanitization.
func (w *WebSearchTool) compileDangerousPatterns() {
	patterns := []string{
		`<script[^>]*>.*?</script>`, // Script tags
		`javascript:`,               // JS protocol
		`on\w+\s*=`,                 // Event handlers (onclick, onload, etc.)
		`data:\s*text/html`,         // Data URLs with HTML
		`\x00`,                     // Null bytes
		`<iframe[^>]*>`,            // Iframes
		`<object[^>]*>`,            // Object tags
		`<embed[^>]*>`,             // Embed tags
	}

	for _, p := range patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			w.dangerousPatterns = append(w.dangerousPatterns, re)
		}
	}
}

// ===========================================================================
// TOOL INTERFACE IMPLEMENTATION
// ===========================================================================

func (w *WebSearchTool) Name() ToolType { return ToolWebSearch }

func (w *WebSearchTool) Validate(req *ToolRequest) error {
	if req.Tool != ToolWebSearch {
		return fmt.Errorf("wrong tool type: expected %s, got %s", ToolWebSearch, req.Tool)
	}

	query := strings.TrimSpace(req.Input)
	if query == "" {
		return fmt.Errorf("search query cannot be empty")
	}

	if len(query) > 500 {
		return fmt.Errorf("search query too long (max 500 characters)")
	}

	if w.apiKey == "" {
		return fmt.Errorf("tavily API key not configured")
	}

	return nil
}

func (w *WebSearchTool) AssessRisk(req *ToolRequest) RiskLevel {
	// Web search involves network access = medium risk
	return RiskMedium
}

func (w *WebSearchTool) Execute(ctx context.Context, req *ToolRequest) (*ToolResult, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Input)

	log := w.log.WithField("query", query)
	log.Debug("searching")

	cacheKey := w.cacheKey(query)
	if cached := w.cache.get(cacheKey); cached != nil {
		return w.formatResult(cached, start, true), nil
	}

	maxResults := 5
	searchDepth := "basic"

	if mr, ok := req.Params["max_results"].(float64); ok {
		maxResults = int(mr)
		if maxResults < 1 {
			maxResults = 1
		} else if maxResults > 10 {
			maxResults = 10
		}
	}
	if depth, ok := req.Params["search_depth"].(string); ok && depth == "advanced" {
		searchDepth = "advanced"
	}

	tavilyReq := &TavilyRequest{
		APIKey:        w.apiKey,
		Query:         query,
		SearchDepth:   searchDepth,
		MaxResults:    maxResults,
		IncludeAnswer: true,
	}

	resp, err := w.callTavily(ctx, tavilyReq)
	if err != nil {
		log.WithError(err).Debug("tavily call failed")
		return &ToolResult{
			Tool:      ToolWebSearch,
			Success:   false,
			Error:     fmt.Sprintf("search failed: %v", err),
			Duration:  time.Since(start),
			RiskLevel: RiskMedium,
		}, err
	}

	w.sanitizeResponse(resp)
	w.cache.set(cacheKey, resp)

	return w.formatResult(resp, start, false), nil
}

// ===========================================================================
// RAW SEARCH (For programmatic access)
// ===========================================================================

// SearchRaw performs a web search and returns raw results without XML formatting.
func (w *WebSearchTool) SearchRaw(ctx context.Context, query string, maxResults int) ([]TavilyResult, error) {
	if w.apiKey == "" {
		return nil, fmt.Errorf("tavily API key not configured")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	cacheKey := w.cacheKey(query)
	if cached := w.cache.get(cacheKey); cached != nil {
		return cached.Results, nil
	}

	if maxResults < 1 {
		maxResults = 1
	} else if maxResults > 10 {
		maxResults = 10
	}

	tavilyReq := &TavilyRequest{
		APIKey:        w.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    maxResults,
		IncludeAnswer: false,
	}

	resp, err := w.callTavily(ctx, tavilyReq)
	if err != nil {
		return nil, err
	}

	w.sanitizeResponse(resp)
	w.cache.set(cacheKey, resp)

	return resp.Results, nil
}

// ===========================================================================
// TAVILY API CLIENT
// ===========================================================================

const tavilyEndpoint = "https://api.tavily.com/search"

func (w *WebSearchTool) callTavily(ctx context.Context, req *TavilyRequest) (*TavilyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", tavilyEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("api call failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d", httpResp.StatusCode)
	}

	var resp TavilyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// ===========================================================================
// CACHE IMPLEMENTATION
// ===========================================================================

func (w *WebSearchTool) cacheKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

func (c *searchCache) get(key string) *TavilyResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}

	if time.Now().After(entry.expiresAt) {
		return nil // Expired
	}

	return entry.result
}

func (c *searchCache) set(key string, result *TavilyResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *searchCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// ===========================================================================
// RESULT FORMATTING (XML Wrapper for Prompt Injection Defense)
// ===========================================================================

func (w *WebSearchTool) formatResult(resp *TavilyResponse, start time.Time, cached bool) *ToolResult {
	var sb strings.Builder

	// XML wrapper signals to the model that this is passive data, not instructions.
	sb.WriteString("<web_search_results>\n")

	if resp.Answer != "" {
		sb.WriteString("  <summary>\n")
		sb.WriteString(fmt.Sprintf("    %s\n", escapeXML(resp.Answer)))
		sb.WriteString("  </summary>\n")
	}

	sb.WriteString("  <sources>\n")
	for i, r := range resp.Results {
		sb.WriteString(fmt.Sprintf("    <source rank=\"%d\">\n", i+1))
		sb.WriteString(fmt.Sprintf("      <title>%s</title>\n", escapeXML(r.Title)))
		sb.WriteString(fmt.Sprintf("      <url>%s</url>\n", escapeXML(r.URL)))
		sb.WriteString(fmt.Sprintf("      <content>%s</content>\n", escapeXML(truncateContent(r.Content, 500))))
		sb.WriteString("    </source>\n")
	}
	sb.WriteString("  </sources>\n")
	sb.WriteString("</web_search_results>")

	return &ToolResult{
		Tool:      ToolWebSearch,
		Success:   true,
		Output:    sb.String(),
		Duration:  time.Since(start),
		RiskLevel: RiskMedium,
		Metadata: map[string]interface{}{
			"query":        resp.Query,
			"result_count": len(resp.Results),
			"cached":       cached,
			"has_answer":   resp.Answer != "",
		},
	}
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

func truncateContent(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ===========================================================================
// SECURITY SANITIZATION
// ===========================================================================

func (w *WebSearchTool) sanitizeResponse(resp *TavilyResponse) {
	resp.Answer = w.sanitizeText(resp.Answer)

	for i := range resp.Results {
		resp.Results[i].Title = w.sanitizeText(resp.Results[i].Title)
		resp.Results[i].Content = w.sanitizeText(resp.Results[i].Content)
		// URLs are validated, not sanitized (would break them)
	}
}

func (w *WebSearchTool) sanitizeText(text string) string {
	for _, pattern := range w.dangerousPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Package dou fetches daily publications of the Diário Oficial da União.
//
// The "leitura do jornal" page for a date and section embeds every act of
// that edition as JSON inside <script id="params">. Source downloads the page
// with colly, retries transient failures with retry-go, optionally archives
// the raw HTML, and parses the embedded entries with goquery.
package dou

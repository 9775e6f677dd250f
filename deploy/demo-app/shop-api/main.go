// shop-api is a small deliberately chatty JSON service to proxy through an
// interception suite while trying out the bridge. It produces the traffic
// shapes the bridge's query protocol is built for:
//   - JSON endpoints with bearer tokens (search=token, search_in=response_body)
//   - gzip-compressed responses (/api/catalog?gzip=1)
//   - static assets (/static/app.js, ext_exclude)
//   - 4xx/5xx responses on demand (/api/orders/{id}, status=4)
//
// Not part of the bridge module; run it standalone on port 3001.

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type order struct {
	ID      int     `json:"id"`
	Item    string  `json:"item"`
	Price   float64 `json:"price"`
	Created string  `json:"created"`
}

var orders = []order{
	{1, "keyboard", 59.90, "2026-01-12T09:30:00Z"},
	{2, "monitor", 249.00, "2026-02-03T14:05:00Z"},
	{3, "usb hub", 19.99, "2026-02-21T11:48:00Z"},
}

func main() {
	http.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "service": "shop-api"})
	})
	http.HandleFunc("/api/login", loginHandler)
	http.HandleFunc("/api/orders", ordersHandler)
	http.HandleFunc("/api/orders/", orderByIDHandler)
	http.HandleFunc("/api/catalog", catalogHandler)
	http.HandleFunc("/static/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, "window.shop = { version: '1.4.2' };\n")
	})

	port := getenv("PORT", "3001")
	log.Printf("shop-api listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var creds struct {
		User string `json:"user"`
		Pass string `json:"pass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.User == "" {
		http.Error(w, `{"error":"bad credentials"}`, http.StatusUnauthorized)
		return
	}
	token := fmt.Sprintf("tok_%s_%d", creds.User, time.Now().Unix())
	writeJSON(w, map[string]string{"access_token": token, "token_type": "bearer"})
}

func ordersHandler(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, orders)
}

func orderByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return
	}
	if id == 500 {
		http.Error(w, `{"error":"synthetic failure"}`, http.StatusInternalServerError)
		return
	}
	for _, o := range orders {
		if o.ID == id {
			writeJSON(w, o)
			return
		}
	}
	http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
}

func catalogHandler(w http.ResponseWriter, r *http.Request) {
	payload, _ := json.Marshal(map[string]any{
		"items":     orders,
		"note":      strings.Repeat("padding ", 200),
		"generated": time.Now().UTC().Format(time.RFC3339),
	})

	if r.URL.Query().Get("gzip") == "1" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		zw.Write(payload)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func authorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok_")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

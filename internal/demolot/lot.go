// Package demolot serves a small dealer website whose inventory pages embed
// schema.org JSON-LD, plus a marketplace view of the same cars. Control
// endpoints sell cars, change prices and break pages so reconciliation
// behavior can be watched end to end.
package demolot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Lot is the demo dealer site.
type Lot struct {
	cfg      Config
	mu       sync.RWMutex
	vehicles []Vehicle
	broken   map[int]bool // inventory pages answering 500
	garbled  map[string]bool
}

// New creates a lot stocked with the generated inventory.
func New(cfg Config) *Lot {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	l := &Lot{cfg: cfg}
	l.reset()
	return l
}

func (l *Lot) reset() {
	l.vehicles = Generate(l.cfg.Vehicles)
	l.broken = map[int]bool{}
	l.garbled = map[string]bool{}
}

// Handler returns the site's routes.
func (l *Lot) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/inventory", l.inventoryHandler(false))
	mux.HandleFunc("/marketplace", l.inventoryHandler(true))
	mux.HandleFunc("/vdp/", l.vdpHandler)
	mux.HandleFunc("/img/", l.imageHandler)

	mux.HandleFunc("/demo/control", l.controlPanelHandler)
	mux.HandleFunc("/demo/state", l.stateHandler)
	mux.HandleFunc("/demo/sell", l.post(l.sell))
	mux.HandleFunc("/demo/price", l.post(l.setPrice))
	mux.HandleFunc("/demo/break-page", l.post(l.breakPage))
	mux.HandleFunc("/demo/garble", l.post(l.garble))
	mux.HandleFunc("/demo/reset", l.post(func(r *http.Request) (string, error) {
		l.reset()
		return "inventory restocked", nil
	}))
	return mux
}

// Start listens on the configured port.
func (l *Lot) Start() error {
	addr := fmt.Sprintf(":%d", l.cfg.Port)
	fmt.Printf("Demo lot starting on http://localhost%s\n", addr)
	fmt.Printf("Inventory pages at http://localhost%s/inventory?page={page}\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	return http.ListenAndServe(addr, l.Handler())
}

// Vehicles returns a copy of the current stock.
func (l *Lot) Vehicles() []Vehicle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Vehicle(nil), l.vehicles...)
}

// inventoryHandler renders one page. The marketplace view omits dealer
// URLs and VINs, shifts prices and adds a deal rating.
func (l *Lot) inventoryHandler(marketplace bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}

		l.mu.RLock()
		defer l.mu.RUnlock()
		if !marketplace && l.broken[page] {
			http.Error(w, "inventory service unavailable", http.StatusInternalServerError)
			return
		}

		start := (page - 1) * l.cfg.PageSize
		end := min(start+l.cfg.PageSize, len(l.vehicles))
		base := "http://" + r.Host

		var body strings.Builder
		body.WriteString("<!DOCTYPE html><html><head><title>Inventory</title></head><body>\n")
		for i := start; i < end; i++ {
			v := l.vehicles[i]
			body.WriteString(`<div class="vehicle-card">` + template.HTMLEscapeString(v.Stock) + "</div>\n")
			body.WriteString(`<script type="application/ld+json">`)
			if !marketplace && l.garbled[v.Stock] {
				body.WriteString(`{"@type": "Car", "name": `)
			} else {
				ld, _ := json.Marshal(jsonLD(v, base, marketplace))
				body.Write(ld)
			}
			body.WriteString("</script>\n")
		}
		body.WriteString("</body></html>\n")

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body.String()))
	}
}

func jsonLD(v Vehicle, base string, marketplace bool) map[string]any {
	images := make([]string, 0, v.Photos)
	for n := 1; n <= v.Photos; n++ {
		images = append(images, fmt.Sprintf("%s/img/%s-%d.png", base, v.Stock, n))
	}
	props := []map[string]any{}
	for _, b := range v.Badges {
		props = append(props, map[string]any{"@type": "PropertyValue", "name": "badge", "value": b})
	}
	props = append(props, map[string]any{"@type": "PropertyValue", "name": "Engine", "value": engine(v)})

	ld := map[string]any{
		"@context":                "https://schema.org",
		"@type":                   "Car",
		"name":                    fmt.Sprintf("%d %s %s %s", v.Year, v.Make, v.Model, v.Trim),
		"vehicleModelDate":        strconv.Itoa(v.Year),
		"brand":                   map[string]any{"@type": "Brand", "name": v.Make},
		"model":                   v.Model,
		"vehicleConfiguration":    v.Trim,
		"bodyType":                v.Body,
		"color":                   v.Color,
		"vehicleTransmission":     v.Transmission,
		"driveWheelConfiguration": v.Drivetrain,
		"fuelType":                v.Fuel,
		"mileageFromOdometer":     map[string]any{"@type": "QuantitativeValue", "value": v.Odometer, "unitCode": "KMT"},
		"image":                   images,
		"description":             v.Description,
	}
	price := v.Price
	if marketplace {
		ld["url"] = fmt.Sprintf("%s/marketplace/listing/%s", base, strings.ToLower(v.Stock))
		price += 400
		ld["image"] = append(images, fmt.Sprintf("%s/img/%s-mp.png", base, v.Stock))
		props = append(props, map[string]any{"@type": "PropertyValue", "name": "deal_rating", "value": dealRating(v)})
	} else {
		ld["url"] = fmt.Sprintf("%s/vdp/%s", base, strings.ToLower(v.Stock))
		ld["vehicleIdentificationNumber"] = v.VIN
		ld["sku"] = v.Stock
		if v.Interior != "" {
			ld["vehicleInteriorColor"] = v.Interior
		}
	}
	ld["offers"] = map[string]any{"@type": "Offer", "price": price, "priceCurrency": "USD"}
	ld["additionalProperty"] = props
	return ld
}

func engine(v Vehicle) string {
	if v.Fuel == "Electric" {
		return "Dual Motor"
	}
	return "2.5L I4"
}

func dealRating(v Vehicle) string {
	switch {
	case v.Price < 25000:
		return "Great Deal"
	case v.Price < 35000:
		return "Good Deal"
	default:
		return "Fair Deal"
	}
}

func (l *Lot) vdpHandler(w http.ResponseWriter, r *http.Request) {
	stock := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, "/vdp/"), "/"))
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, v := range l.vehicles {
		if v.Stock == stock {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, "<html><body><h1>%d %s %s</h1><p>%s</p></body></html>",
				v.Year, template.HTMLEscapeString(v.Make), template.HTMLEscapeString(v.Model),
				template.HTMLEscapeString(v.Description))
			return
		}
	}
	http.NotFound(w, r)
}

// imageHandler draws a solid swatch seeded by the file name, so each photo
// has distinct bytes.
func (l *Lot) imageHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/img/")
	if !strings.HasSuffix(name, ".png") {
		http.NotFound(w, r)
		return
	}
	var seed uint32
	for _, c := range name {
		seed = seed*31 + uint32(c)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fill := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255}
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// post wraps a mutating control action.
func (l *Lot) post(action func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		l.mu.Lock()
		msg, err := action(r)
		l.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": msg})
	}
}

func (l *Lot) sell(r *http.Request) (string, error) {
	stock := strings.ToUpper(r.FormValue("stock"))
	for i, v := range l.vehicles {
		if v.Stock == stock {
			l.vehicles = append(l.vehicles[:i], l.vehicles[i+1:]...)
			return "sold " + stock, nil
		}
	}
	return "", fmt.Errorf("no vehicle with stock %q", stock)
}

func (l *Lot) setPrice(r *http.Request) (string, error) {
	stock := strings.ToUpper(r.FormValue("stock"))
	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil {
		return "", fmt.Errorf("invalid price")
	}
	for i := range l.vehicles {
		if l.vehicles[i].Stock == stock {
			l.vehicles[i].Price = price
			return fmt.Sprintf("%s now %.0f", stock, price), nil
		}
	}
	return "", fmt.Errorf("no vehicle with stock %q", stock)
}

func (l *Lot) breakPage(r *http.Request) (string, error) {
	page, err := strconv.Atoi(r.FormValue("page"))
	if err != nil || page < 1 {
		return "", fmt.Errorf("invalid page")
	}
	l.broken[page] = !l.broken[page]
	return fmt.Sprintf("page %d broken=%t", page, l.broken[page]), nil
}

func (l *Lot) garble(r *http.Request) (string, error) {
	stock := strings.ToUpper(r.FormValue("stock"))
	l.garbled[stock] = !l.garbled[stock]
	return fmt.Sprintf("%s garbled=%t", stock, l.garbled[stock]), nil
}

func (l *Lot) stateHandler(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	broken := make([]int, 0, len(l.broken))
	for p, b := range l.broken {
		if b {
			broken = append(broken, p)
		}
	}
	sort.Ints(broken)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"vehicles":     l.vehicles,
		"page_size":    l.cfg.PageSize,
		"broken_pages": broken,
	})
}

func (l *Lot) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	tmpl := template.Must(template.New("control").Parse(controlPanelHTML))
	l.mu.RLock()
	data := struct{ Vehicles []Vehicle }{Vehicles: append([]Vehicle(nil), l.vehicles...)}
	l.mu.RUnlock()
	w.Header().Set("Content-Type", "text/html")
	_ = tmpl.Execute(w, data)
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Lot Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 1000px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        table { width: 100%; border-collapse: collapse; background: white; }
        td, th { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; }
        button { padding: 6px 12px; border: none; border-radius: 4px; cursor: pointer; }
        .sell { background: #dc3545; color: white; }
        .reset { background: #28a745; color: white; margin-bottom: 15px; }
    </style>
</head>
<body>
    <h1>Demo Lot Control Panel</h1>
    <button class="reset" onclick="act('/demo/reset', '')">Restock</button>
    <table>
        <tr><th>Stock</th><th>Vehicle</th><th>Price</th><th>Odometer</th><th></th></tr>
        {{range .Vehicles}}
        <tr>
            <td>{{.Stock}}</td>
            <td>{{.Year}} {{.Make}} {{.Model}} {{.Trim}}</td>
            <td>{{printf "%.0f" .Price}}</td>
            <td>{{.Odometer}}</td>
            <td><button class="sell" onclick="act('/demo/sell', 'stock={{.Stock}}')">Sell</button></td>
        </tr>
        {{end}}
    </table>
    <script>
        function act(path, body) {
            fetch(path, {method: 'POST', headers: {'Content-Type': 'application/x-www-form-urlencoded'}, body: body})
            .then(() => location.reload());
        }
    </script>
</body>
</html>`

package demolot

import (
	"fmt"
	"strings"
)

// Vehicle is one car on the demo lot.
type Vehicle struct {
	Stock        string   `json:"stock"`
	VIN          string   `json:"vin"`
	Year         int      `json:"year"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Trim         string   `json:"trim"`
	Body         string   `json:"body"`
	Color        string   `json:"color"`
	Interior     string   `json:"interior,omitempty"`
	Transmission string   `json:"transmission"`
	Drivetrain   string   `json:"drivetrain"`
	Fuel         string   `json:"fuel"`
	Price        float64  `json:"price"`
	Odometer     int      `json:"odometer"`
	Photos       int      `json:"photos"`
	Badges       []string `json:"badges,omitempty"`
	Description  string   `json:"description"`
}

var demoModels = []struct {
	make, model, trim, body, drive, fuel string
	basePrice                            float64
}{
	{"Toyota", "Camry", "SE", "Sedan", "FWD", "Gasoline", 24990},
	{"Honda", "CR-V", "EX-L", "SUV", "AWD", "Gasoline", 28750},
	{"Ford", "F-150", "XLT", "Pickup", "4WD", "Gasoline", 38900},
	{"Tesla", "Model 3", "Long Range", "Sedan", "AWD", "Electric", 31500},
	{"Subaru", "Outback", "Premium", "Wagon", "AWD", "Gasoline", 26400},
	{"Chevrolet", "Silverado 1500", "LT", "Pickup", "4WD", "Gasoline", 41200},
	{"Hyundai", "Tucson", "SEL", "SUV", "FWD", "Hybrid", 27300},
	{"Mazda", "CX-5", "Touring", "SUV", "AWD", "Gasoline", 25600},
}

var demoColors = []string{"Silver", "Black", "White", "Blue", "Red", "Gray"}

// Generate builds a deterministic inventory of n vehicles.
func Generate(n int) []Vehicle {
	out := make([]Vehicle, 0, n)
	for i := 0; i < n; i++ {
		m := demoModels[i%len(demoModels)]
		v := Vehicle{
			Stock:        fmt.Sprintf("L%04d", 1001+i),
			VIN:          demoVIN(i),
			Year:         2018 + i%6,
			Make:         m.make,
			Model:        m.model,
			Trim:         m.trim,
			Body:         m.body,
			Color:        demoColors[i%len(demoColors)],
			Transmission: "Automatic",
			Drivetrain:   m.drive,
			Fuel:         m.fuel,
			Price:        m.basePrice - float64(i*350),
			Odometer:     12000 + i*4100,
			Photos:       2 + i%3,
			Description:  fmt.Sprintf("Clean %s %s %s, one owner, serviced on site.", m.make, m.model, m.trim),
		}
		if i%2 == 0 {
			v.Interior = "Black Cloth"
		}
		if i%3 == 0 {
			v.Badges = []string{"Certified"}
		}
		out = append(out, v)
	}
	return out
}

// demoVIN returns a 17 character VIN unique per index.
func demoVIN(i int) string {
	return strings.ToUpper(fmt.Sprintf("1LOTDEMO%09d", 100000000+i*7919)[:17])
}

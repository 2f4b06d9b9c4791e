// Package crop defines the seven bounded soil and climate measurements that
// feed the crop classifier, and the input panel that collects them.
package crop

import (
	"fmt"
	"math"
)

// NumFeatures is the length of the classifier feature vector.
const NumFeatures = 7

// Field identifies one measurement. The string value is the key used by
// HTML forms, JSON bodies and command arguments.
type Field string

const (
	FieldNitrogen    Field = "n"
	FieldPhosphorus  Field = "p"
	FieldPotassium   Field = "k"
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldPH          Field = "ph"
	FieldRainfall    Field = "rainfall"
)

// FeatureNames is the column order the classifier was trained on.
var FeatureNames = [NumFeatures]string{"N", "P", "K", "temperature", "humidity", "ph", "rainfall"}

// Bound describes the accepted range of a field.
type Bound struct {
	Field   Field
	Label   string
	Min     float64
	Max     float64
	Integer bool
}

// Bounds lists every field in feature order.
var Bounds = [NumFeatures]Bound{
	{Field: FieldNitrogen, Label: "Nitrogen (N)", Min: 0, Max: 140, Integer: true},
	{Field: FieldPhosphorus, Label: "Phosphorus (P)", Min: 0, Max: 145, Integer: true},
	{Field: FieldPotassium, Label: "Potassium (K)", Min: 0, Max: 205, Integer: true},
	{Field: FieldTemperature, Label: "Temperature (°C)", Min: 0, Max: 50},
	{Field: FieldHumidity, Label: "Humidity (%)", Min: 0, Max: 100},
	{Field: FieldPH, Label: "pH Value", Min: 0, Max: 14},
	{Field: FieldRainfall, Label: "Rainfall (mm)", Min: 0, Max: 300},
}

// BoundFor returns the bound of field and its position in the feature vector.
func BoundFor(field Field) (Bound, int, bool) {
	for i, b := range Bounds {
		if b.Field == field {
			return b, i, true
		}
	}

	return Bound{}, -1, false
}

// Clamp returns x limited to the bound's range.
func (b Bound) Clamp(x float64) float64 {
	return math.Min(b.Max, math.Max(b.Min, x))
}

// Contains reports whether x lies inside the bound's range.
func (b Bound) Contains(x float64) bool {
	return x >= b.Min && x <= b.Max
}

// Format renders x the way the panel displays the field.
func (b Bound) Format(x float64) string {
	if b.Integer {
		return fmt.Sprintf("%d", int(x))
	}

	return fmt.Sprintf("%.2f", x)
}

// InputVector holds one set of measurements.
type InputVector struct {
	Nitrogen    int     `json:"n"`
	Phosphorus  int     `json:"p"`
	Potassium   int     `json:"k"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`
}

// Features returns the vector in the fixed order N, P, K, temperature,
// humidity, pH, rainfall.
func (v InputVector) Features() [NumFeatures]float64 {
	return [NumFeatures]float64{
		float64(v.Nitrogen),
		float64(v.Phosphorus),
		float64(v.Potassium),
		v.Temperature,
		v.Humidity,
		v.PH,
		v.Rainfall,
	}
}

// Validate returns an error naming the first field outside its bound.
func (v InputVector) Validate() error {
	features := v.Features()
	for i, b := range Bounds {
		x := features[i]
		if math.IsNaN(x) || !b.Contains(x) {
			return fmt.Errorf("%s must be between %s and %s, got %v", b.Field, b.Format(b.Min), b.Format(b.Max), x)
		}
	}

	return nil
}

// FromFeatures builds a vector from values in feature order.
func FromFeatures(f [NumFeatures]float64) InputVector {
	return InputVector{
		Nitrogen:    int(f[0]),
		Phosphorus:  int(f[1]),
		Potassium:   int(f[2]),
		Temperature: f[3],
		Humidity:    f[4],
		PH:          f[5],
		Rainfall:    f[6],
	}
}

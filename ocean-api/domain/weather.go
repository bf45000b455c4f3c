package domain

// WeatherConditions are the surface conditions at a location.
type WeatherConditions struct {
	SST       float64 `json:"sst"`
	WindSpeed float64 `json:"wind_speed"`
	Humidity  float64 `json:"humidity"`
	Pressure  float64 `json:"pressure"`
	Source    string  `json:"source"`
}

package models

// Location is the point selected on the map.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Parameters is the radio-link form submitted by a planner. Only NumCells
// drives the plan; the link-budget and traffic fields are carried so clients
// can show them back.
type Parameters struct {
	// Link budget
	TransmitPower    float64 `json:"pt" yaml:"pt"`       // dBm
	TransmitGain     float64 `json:"gt" yaml:"gt"`       // dBi
	ReceiveGain      float64 `json:"gr" yaml:"gr"`       // dBi
	Sensitivity      float64 `json:"pr" yaml:"pr"`       // dBm
	Frequency        float64 `json:"f" yaml:"f"`         // MHz
	BaseHeight       float64 `json:"hb" yaml:"hb"`       // m
	MobileHeight     float64 `json:"hm" yaml:"hm"`       // m
	Area             string  `json:"area" yaml:"area"`   // e.g. "Urbain"
	PropagationModel string  `json:"model" yaml:"model"` // e.g. "Hata Urbain"

	// Traffic
	Users          int     `json:"users" yaml:"users"`
	Usage          float64 `json:"usage" yaml:"usage"`           // min/call/user
	PeakHours      float64 `json:"peak_hours" yaml:"peak_hours"` // h/day
	QoSBlock       float64 `json:"qos_block" yaml:"qos_block"`   // %
	QoSDrop        float64 `json:"qos_drop" yaml:"qos_drop"`     // %
	Channels       int     `json:"channels" yaml:"channels"`
	FrequencyReuse string  `json:"frequency_reuse" yaml:"frequency_reuse"`

	// NumCells is the raw reuse factor N as typed by the planner.
	NumCells string `json:"num_cells" yaml:"num_cells"`

	Location Location `json:"location" yaml:"location"`
}

// DefaultParameters returns the values the form starts with.
func DefaultParameters() Parameters {
	return Parameters{
		TransmitPower:    30,
		TransmitGain:     15,
		ReceiveGain:      2,
		Sensitivity:      -100,
		Frequency:        900,
		BaseHeight:       30,
		MobileHeight:     1.5,
		Area:             "Urbain",
		PropagationModel: "Hata Urbain",
		Users:            5000,
		Usage:            2,
		PeakHours:        3,
		QoSBlock:         2,
		QoSDrop:          1,
		Channels:         8,
		FrequencyReuse:   "1/7",
		NumCells:         "7",
		Location:         Location{Lat: 14.6928, Lng: -17.4467},
	}
}

// WithNumCells returns a copy of p with NumCells replaced.
func (p Parameters) WithNumCells(raw string) Parameters {
	p.NumCells = raw
	return p
}

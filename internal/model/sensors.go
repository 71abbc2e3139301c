package model

// Sensor kinds derived from the SEV hourly series.
const (
	KindKWH       = "kwh"
	KindCO2       = "co2"
	KindCost      = "cost"
	KindKWHToday  = "kwh_today"
	KindCO2Today  = "co2_today"
	KindCostToday = "cost_today"
	KindKWHMonth  = "kwh_month"
	KindCO2Month  = "co2_month"
	KindCostMonth = "cost_month"
	KindKWHTotal  = "kwh_total"
)

// SensorType carries the presentation metadata for one sensor kind.
type SensorType struct {
	Name        string
	Unit        string
	Icon        string
	DeviceClass string
	StateClass  string
}

var SensorTypes = map[string]SensorType{
	KindKWH: {
		Name:        "Energy consumption, last hour",
		Unit:        "kWh",
		Icon:        "mdi:home-lightning-bolt",
		DeviceClass: "energy",
		StateClass:  "measurement",
	},
	KindCO2: {
		Name:        "Estimated co2 usage, last hour",
		Unit:        "kg",
		Icon:        "mdi:molecule-co2",
		DeviceClass: "power_factor",
		StateClass:  "measurement",
	},
	KindCost: {
		Name:        "Estimated cost, last hour",
		Unit:        "kr",
		Icon:        "mdi:circle-multiple",
		DeviceClass: "monetary",
		StateClass:  "measurement",
	},
	KindKWHToday: {
		Name:        "Energy consumption, today",
		Unit:        "kWh",
		Icon:        "mdi:home-lightning-bolt",
		DeviceClass: "energy",
		StateClass:  "total",
	},
	KindCO2Today: {
		Name:        "Estimated co2 usage, today",
		Unit:        "kg",
		Icon:        "mdi:molecule-co2",
		DeviceClass: "power_factor",
		StateClass:  "total",
	},
	KindCostToday: {
		Name:        "Estimated cost, today",
		Unit:        "kr",
		Icon:        "mdi:circle-multiple",
		DeviceClass: "monetary",
		StateClass:  "measurement",
	},
	KindKWHMonth: {
		Name:        "Energy consumption, this month",
		Unit:        "kWh",
		Icon:        "mdi:home-lightning-bolt",
		DeviceClass: "energy",
		StateClass:  "total",
	},
	KindCO2Month: {
		Name:        "Estimated co2 usage, this month",
		Unit:        "kg",
		Icon:        "mdi:molecule-co2",
		DeviceClass: "power_factor",
		StateClass:  "total",
	},
	KindCostMonth: {
		Name:        "Estimated cost, this month",
		Unit:        "kr",
		Icon:        "mdi:circle-multiple",
		DeviceClass: "monetary",
		StateClass:  "total",
	},
	KindKWHTotal: {
		Name:        "Energy consumption, total",
		Unit:        "kWh",
		Icon:        "mdi:home-lightning-bolt",
		DeviceClass: "energy",
		StateClass:  "total",
	},
}

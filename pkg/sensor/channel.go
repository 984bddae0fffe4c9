package sensor

// Channel identifies one measured or derived physical quantity.
type Channel string

const (
	O2          Channel = "o2"
	Helium      Channel = "he"
	N2          Channel = "n2"
	CO2         Channel = "co2"
	CO          Channel = "co"
	Temperature Channel = "temp"
	Pressure    Channel = "press"
	Humidity    Channel = "hum"
)

// Meta describes a channel's unit, plausible physical range, and display
// precision. The range is a sanity bound for simulated values and graph
// scaling, not a hard limit on real readings.
type Meta struct {
	Label    string
	Unit     string
	Min      float64
	Max      float64
	Decimals int  // decimal places applied at the snapshot boundary
	Derived  bool // computed from other channels, not read from a source
}

var channelMeta = map[Channel]Meta{
	O2:          {Label: "O2", Unit: "%", Min: 0, Max: 100, Decimals: 2},
	Helium:      {Label: "He", Unit: "%", Min: 0, Max: 100, Decimals: 2},
	N2:          {Label: "N2", Unit: "%", Min: 0, Max: 100, Decimals: 2, Derived: true},
	CO2:         {Label: "CO2", Unit: "ppm", Min: 0, Max: 5000, Decimals: 0},
	CO:          {Label: "CO", Unit: "ppm", Min: 0, Max: 1000, Decimals: 0},
	Temperature: {Label: "Temp", Unit: "°C", Min: -10, Max: 50, Decimals: 2},
	Pressure:    {Label: "Pressure", Unit: "bar", Min: 0.8, Max: 1.2, Decimals: 2},
	Humidity:    {Label: "Humidity", Unit: "%RH", Min: 0, Max: 100, Decimals: 2},
}

// channelOrder fixes the iteration order for snapshots and displays.
var channelOrder = []Channel{O2, Helium, N2, CO2, CO, Temperature, Pressure, Humidity}

// Channels returns all channels in display order.
func Channels() []Channel {
	out := make([]Channel, len(channelOrder))
	copy(out, channelOrder)
	return out
}

// MetaFor returns the metadata for a channel. Unknown channels return a
// zero Meta.
func MetaFor(ch Channel) Meta {
	return channelMeta[ch]
}

// Valid reports whether ch names a known channel.
func (ch Channel) Valid() bool {
	_, ok := channelMeta[ch]
	return ok
}

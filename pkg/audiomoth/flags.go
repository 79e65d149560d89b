package audiomoth

// bitField describes one boolean stored in a packet. Packed fields occupy a
// single bit; whole-byte fields use the full byte as 0 or 1. Inverted fields
// store the negation of the settings value.
type bitField struct {
	name   string
	offset int
	bit    uint
	whole  bool
	invert bool
	field  func(r *Record) *bool
}

func (f bitField) put(buf []byte, r *Record) {
	v := *f.field(r)
	if f.invert {
		v = !v
	}
	if f.whole {
		if v {
			buf[f.offset] = 1
		} else {
			buf[f.offset] = 0
		}
		return
	}
	if v {
		buf[f.offset] |= 1 << f.bit
	} else {
		buf[f.offset] &^= 1 << f.bit
	}
}

func (f bitField) get(buf []byte, r *Record) {
	var v bool
	if f.whole {
		v = buf[f.offset] != 0
	} else {
		v = buf[f.offset]&(1<<f.bit) != 0
	}
	if f.invert {
		v = !v
	}
	*f.field(r) = v
}

func putFlags(buf []byte, fields []bitField, r *Record) {
	for _, f := range fields {
		f.put(buf, r)
	}
}

func getFlags(buf []byte, fields []bitField, r *Record) {
	for _, f := range fields {
		f.get(buf, r)
	}
}

func ledField(r *Record) *bool             { return &r.Settings.LEDEnabled }
func lowVoltageCutoffField(r *Record) *bool { return &r.LowVoltageCutoff }
func batteryCheckField(r *Record) *bool    { return &r.Settings.BatteryLevelCheckEnabled }
func dutyField(r *Record) *bool            { return &r.Settings.DutyEnabled }
func energySaverField(r *Record) *bool     { return &r.Settings.EnergySaverModeEnabled }
func disable48DCField(r *Record) *bool     { return &r.Settings.Disable48DCFilter }
func dailyFoldersField(r *Record) *bool    { return &r.Settings.DailyFolders }
func acousticConfigField(r *Record) *bool  { return &r.Settings.RequireAcousticConfig }
func voltageRangeField(r *Record) *bool    { return &r.Settings.DisplayVoltageRange }
func lowGainRangeField(r *Record) *bool    { return &r.Settings.LowGainRange }

var multiGainFlags = []bitField{
	{name: "ledEnabled", offset: 27, bit: 0, field: ledField},
	{name: "lowVoltageCutoffEnabled", offset: 27, bit: 1, field: lowVoltageCutoffField},
	{name: "batteryLevelCheckEnabled", offset: 27, bit: 2, field: batteryCheckField},
	{name: "dutyEnabled", offset: 27, bit: 3, field: dutyField},
	{name: "energySaverModeEnabled", offset: 27, bit: 4, field: energySaverField},
	{name: "disable48DCFilter", offset: 27, bit: 5, field: disable48DCField},
	{name: "dailyFolders", offset: 27, bit: 7, field: dailyFoldersField},
	{name: "requireAcousticConfig", offset: 59, bit: 0, field: acousticConfigField},
	{name: "displayVoltageRange", offset: 59, bit: 1, field: voltageRangeField},
}

var singleGainFlags = []bitField{
	{name: "ledEnabled", offset: 17, whole: true, field: ledField},
	{name: "lowVoltageCutoffEnabled", offset: 40, whole: true, field: lowVoltageCutoffField},
	{name: "batteryLevelCheckEnabled", offset: 41, whole: true, invert: true, field: batteryCheckField},
	{name: "dutyEnabled", offset: 43, whole: true, invert: true, field: dutyField},
	{name: "requireAcousticConfig", offset: 58, bit: 0, field: acousticConfigField},
	{name: "displayVoltageRange", offset: 58, bit: 1, field: voltageRangeField},
	{name: "energySaverModeEnabled", offset: 61, bit: 0, field: energySaverField},
	{name: "disable48DCFilter", offset: 61, bit: 1, field: disable48DCField},
	{name: "lowGainRange", offset: 61, bit: 4, field: lowGainRangeField},
	{name: "dailyFolders", offset: 61, bit: 6, field: dailyFoldersField},
}

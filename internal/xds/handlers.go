package xds

import (
	"fmt"
	"strings"
	"time"
)

// packet is a checksummed XDS packet: start code, type, informational
// bytes, 0x0F.
type packet struct {
	class Class
	typ   int
	data  []byte
}

// text returns the informational bytes as a string with padding removed.
func (p packet) text() string {
	if len(p.data) < 3 {
		return ""
	}
	return strings.TrimRight(string(p.data[2:len(p.data)-1]), "\x00")
}

func (d *Decoder) currentAndFuture(p packet) bool {
	current := p.class == ClassCurrent
	switch {
	case p.typ == typePINStartTime:
		if len(p.data) < 7 {
			return true
		}
		st := StartTime{
			Minute: int(p.data[2] & 0x3F),
			Hour:   int(p.data[3] & 0x1F),
			Day:    int(p.data[4] & 0x1F),
			Month:  int(p.data[5] & 0x0F),
		}
		d.emit(p.class, fmt.Sprintf("PIN (Start Time): %s  %02d-%02d %02d:%02d",
			p.class, st.Day, st.Month, st.Hour, st.Minute))
		if current && (!d.info.HaveStart || d.info.Start != st) {
			d.log.Info("program changed", "start", fmt.Sprintf("%02d-%02d %02d:%02d", st.Day, st.Month, st.Hour, st.Minute))
			d.info.Start = st
			d.info.HaveStart = true
		}

	case p.typ == typeLengthAndTime:
		if len(p.data) < 5 {
			return true
		}
		length := time.Duration(p.data[3]&0x1F)*time.Hour + time.Duration(p.data[2]&0x3F)*time.Minute
		d.emit(p.class, fmt.Sprintf("Program length (HH:MM): %s", hhmm(length)))
		var elapsed time.Duration
		if len(p.data) > 6 {
			elapsed = time.Duration(p.data[5]&0x1F)*time.Hour + time.Duration(p.data[4]&0x3F)*time.Minute
			d.emit(p.class, fmt.Sprintf("Elapsed (HH:MM): %s", hhmm(elapsed)))
		}
		if len(p.data) > 8 {
			sec := time.Duration(p.data[6]&0x3F) * time.Second
			elapsed += sec
			d.emit(p.class, fmt.Sprintf("Elapsed (SS) :%02d", int(sec.Seconds())))
		}
		if current {
			if d.info.Length != length {
				d.log.Info("program length", "length", hhmm(length))
			}
			d.info.Length = length
			d.info.Elapsed = elapsed
		}

	case p.typ == typeProgramName:
		name := p.text()
		d.emit(p.class, "Program name: "+name)
		if current && name != d.info.ProgramName {
			d.log.Info("program is now", "name", name)
			d.info.ProgramName = name
		}

	case p.typ == typeProgramType:
		if len(p.data) < 5 {
			return true
		}
		var types []string
		var b strings.Builder
		for _, c := range p.data[2 : len(p.data)-1] {
			if c == 0 {
				continue
			}
			if c < 0x20 || c >= 0x7F {
				d.log.Debug("illegal program type", "code", c)
				continue
			}
			t := ProgramTypes[c-0x20]
			types = append(types, t)
			fmt.Fprintf(&b, "[%s] ", t)
		}
		d.emit(p.class, "Program type "+b.String())
		if current {
			d.info.ProgramTypes = types
		}

	case p.typ == typeContentAdvisory:
		if len(p.data) < 5 {
			return true
		}
		a, ok := decodeAdvisory(p.data[2], p.data[3])
		if !ok {
			d.log.Debug("unsupported content advisory encoding", "c1", p.data[2], "c2", p.data[3])
			return true
		}
		if a.System == "US TV" {
			d.emit(p.class, "ContentAdvisory: US TV Parental Guidelines. Age Rating: "+a.Rating)
			if len(a.Content) > 0 {
				d.emit(p.class, "["+strings.Join(a.Content, "] [")+"]")
			}
		} else {
			d.emit(p.class, fmt.Sprintf("ContentAdvisory: %s Rating: %s", a.System, a.Rating))
		}
		if current {
			d.info.Advisory = a
		}

	case p.typ == typeAudioServices:
		// Accepted; no samples carry it.

	case p.typ == typeCGMS:
		if len(p.data) < 5 {
			return true
		}
		c, ok := decodeCGMS(p.data[2], p.data[3])
		if !ok {
			return true
		}
		if c != d.info.CGMS {
			d.log.Info("copy generation management", "cgms", c.Copy, "aps", c.APS, "rcd", c.RCD)
		}
		d.emit(p.class, "CGMS: "+c.Copy)
		d.emit(p.class, "APS: "+c.APS)
		d.emit(p.class, fmt.Sprintf("Redistribution Control Descriptor: %d", c.RCD))
		d.info.CGMS = c

	case p.typ == typeAspectRatio:
		if len(p.data) < 5 {
			return true
		}
		if p.data[2]&0x40 == 0 || p.data[3]&0x40 == 0 {
			return true
		}
		// Lines are counted from 22 down and from 262 up.
		start := int(p.data[2]&0x1F) + 22
		end := 262 - int(p.data[3]&0x1F)
		d.log.Debug("aspect ratio", "start_line", start, "end_line", end,
			"ratio", 320/float64(end-start))
		d.emit(p.class, fmt.Sprintf("Aspect ratio: start line %d, end line %d", start, end))
		if current {
			d.info.AspectStart = start
			d.info.AspectEnd = end
		}

	case p.typ >= typeProgramDescription && p.typ < typeProgramDescription+8:
		desc := p.text()
		if desc == "" {
			return true
		}
		line := p.typ - typeProgramDescription
		if current && desc != d.info.Description[line] {
			d.log.Info("program description", "line", line, "text", desc)
			d.info.Description[line] = desc
		}
		d.emit(p.class, fmt.Sprintf("XDS description line %d: %s", line, desc))

	default:
		return false
	}
	return true
}

func hhmm(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) - 60*h
	return fmt.Sprintf("%02d:%02d", h, m)
}

var usTVAges = [8]string{
	"None", "TV-Y (All Children)", "TV-Y7 (Older Children)",
	"TV-G (General Audience)", "TV-PG (Parental Guidance Suggested)",
	"TV-14 (Parents Strongly Cautioned)", "TV-MA (Mature Audience Only)", "None",
}

var mpaRatings = [8]string{"N/A", "G", "PG", "PG-13", "R", "NC-17", "X", "Not Rated"}

var canadianEnglish = [8]string{
	"Exempt", "Children", "Children eight years and older",
	"General programming suitable for all audiences", "Parental Guidance",
	"Viewers 14 years and older", "Adult Programming", "[undefined]",
}

var canadianFrench = [8]string{
	"Exemptées", "Général", "Général - Déconseillé aux jeunes enfants",
	"Cette émission peut ne pas convenir aux enfants de moins de 13 ans",
	"Cette émission ne convient pas aux moins de 16 ans",
	"Cette émission est réservée aux adultes", "[invalid]", "[invalid]",
}

// decodeAdvisory decodes the two content advisory bytes. Bits a1/a0 of the
// first byte select the rating system.
func decodeAdvisory(c1, c2 byte) (Advisory, bool) {
	if c1&0x40 == 0 || c2&0x40 == 0 {
		return Advisory{}, false
	}
	da2 := c1&0x20 != 0
	a1 := c1&0x10 != 0
	a0 := c1&0x08 != 0
	r := c1 & 0x07
	fv := c2&0x20 != 0
	s := c2&0x10 != 0
	la3 := c2&0x08 != 0
	g := c2 & 0x07

	switch {
	case !a1 && a0:
		a := Advisory{System: "US TV", Rating: usTVAges[g]}
		if fv {
			if g == 2 {
				a.Content = append(a.Content, "Fantasy Violence")
			} else {
				a.Content = append(a.Content, "Violence")
			}
		}
		if s {
			a.Content = append(a.Content, "Sexual Situations")
		}
		if la3 {
			a.Content = append(a.Content, "Adult Language")
		}
		if da2 {
			a.Content = append(a.Content, "Sexually Suggestive Dialog")
		}
		return a, true
	case !a0:
		return Advisory{System: "MPA", Rating: mpaRatings[r]}, true
	case a0 && a1 && !da2 && !la3:
		return Advisory{System: "Canadian English", Rating: canadianEnglish[g]}, true
	case a0 && a1 && da2 && !la3:
		return Advisory{System: "Canadian French", Rating: canadianFrench[g]}, true
	}
	return Advisory{}, false
}

var cgmsCopy = [4]string{
	"Copy permitted (no restrictions)", "No more copies (one generation copy has been made)",
	"One generation of copies can be made", "No copying is permitted",
}

var cgmsAPS = [4]string{
	"No APS", "PSP On; Split Burst Off", "PSP On; 2 line Split Burst On", "PSP On; 4 line Split Burst On",
}

func decodeCGMS(c1, c2 byte) (CGMS, bool) {
	if c1&0x40 == 0 || c2&0x40 == 0 {
		return CGMS{}, false
	}
	return CGMS{
		Copy: cgmsCopy[(c1>>3)&0x03],
		APS:  cgmsAPS[(c1>>1)&0x03],
		RCD:  int(c2 & 0x01),
	}, true
}

func (d *Decoder) channel(p packet) bool {
	switch p.typ {
	case typeNetworkName:
		name := p.text()
		d.emit(p.class, "Network: "+name)
		if name != d.info.NetworkName {
			d.log.Info("network is now", "name", name)
			d.info.NetworkName = name
		}
	case typeCallLetters:
		// Four call letters, optionally followed by a two digit channel.
		if len(p.data) != 7 && len(p.data) != 9 {
			return true
		}
		letters := p.text()
		d.emit(p.class, "Call Letters: "+letters)
		if letters != d.info.CallLetters {
			d.log.Info("network call letters now", "letters", letters)
			d.info.CallLetters = letters
		}
	case typeTSID:
		if len(p.data) < 7 {
			return true
		}
		// Four nibbles, low nibble first.
		tsid := uint32(p.data[5]&0x0F)<<12 | uint32(p.data[4]&0x0F)<<8 |
			uint32(p.data[3]&0x0F)<<4 | uint32(p.data[2]&0x0F)
		if tsid != 0 {
			d.emit(p.class, fmt.Sprintf("TSID: %d", tsid))
		}
		d.info.TSID = tsid
	default:
		return false
	}
	return true
}

func (d *Decoder) misc(p packet) bool {
	switch p.typ {
	case typeTimeOfDay:
		if len(p.data) < 9 {
			return true
		}
		minute := int(p.data[2] & 0x3F)
		hour := int(p.data[3] & 0x1F)
		day := int(p.data[4] & 0x1F)
		month := int(p.data[5] & 0x0F)
		reset := p.data[5]&0x20 != 0
		dow := int(p.data[6] & 0x07)
		year := int(p.data[7]&0x3F) + 1990
		d.log.Debug("time of day", "year", year, "month", month, "day", day,
			"hour", hour, "minute", minute, "dow", dow, "reset_seconds", reset)
		d.info.TimeOfDay = time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
		d.info.ResetSeconds = reset
		d.emit(p.class, "Time of day: "+d.info.TimeOfDay.Format("2006/01/02 15:04"))
	case typeLocalTimeZone:
		if len(p.data) < 5 {
			return true
		}
		tz := TimeZone{Hours: int(p.data[2] & 0x1F), DST: p.data[2]&0x20 != 0}
		d.log.Debug("local time zone", "hours", tz.Hours, "dst", tz.DST)
		d.info.TimeZone = tz
		d.info.HaveTimeZone = true
	default:
		return false
	}
	return true
}

func (d *Decoder) private(p packet) bool {
	var b strings.Builder
	for _, c := range p.data[2 : len(p.data)-1] {
		fmt.Fprintf(&b, "%02X ", c)
	}
	d.emit(p.class, strings.TrimSpace(b.String()))
	return true
}

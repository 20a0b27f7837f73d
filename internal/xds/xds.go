// Package xds decodes Extended Data Services packets carried in CEA-608
// field 2: program and network identification, ratings, copy control and
// time of day.
package xds

import "time"

// Class is the packet class selected by the start code.
type Class int

// Packet classes. OutOfBand is not sent on the wire; it marks packets
// whose type has bit 6 set.
const (
	ClassCurrent Class = iota
	ClassFuture
	ClassChannel
	ClassMisc
	ClassPublic
	ClassReserved
	ClassPrivate
	ClassEnd
	ClassOutOfBand Class = 0x40
)

var classNames = [...]string{
	"Current", "Future", "Channel", "Miscellaneous",
	"Public service", "Reserved", "Private data", "End",
}

var classShort = [...]string{"CUR", "FUT", "CHN", "MIS", "PUB", "RES", "PRV", "END"}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	if c == ClassOutOfBand {
		return "Out of band"
	}
	return "unknown"
}

// Short returns the three letter tag transcripts print for c.
func (c Class) Short() string {
	if c >= 0 && int(c) < len(classShort) {
		return classShort[c]
	}
	return "OOB"
}

// Packet types of the current and future classes.
const (
	typePINStartTime       = 0x01
	typeLengthAndTime      = 0x02
	typeProgramName        = 0x03
	typeProgramType        = 0x04
	typeContentAdvisory    = 0x05
	typeAudioServices      = 0x06
	typeCGMS               = 0x08
	typeAspectRatio        = 0x09
	typeProgramDescription = 0x10 // through 0x17
)

// Packet types of the channel class.
const (
	typeNetworkName = 0x01
	typeCallLetters = 0x02
	typeTSID        = 0x04
)

// Packet types of the miscellaneous class.
const (
	typeTimeOfDay     = 0x01
	typeLocalTimeZone = 0x04
)

// ProgramTypes names the program type codes 0x20-0x7F.
var ProgramTypes = [96]string{
	"Education", "Entertainment", "Movie", "News", "Religious",
	"Sports", "Other", "Action", "Advertisement", "Animated",
	"Anthology", "Automobile", "Awards", "Baseball", "Basketball",
	"Bulletin", "Business", "Classical", "College", "Combat",
	"Comedy", "Commentary", "Concert", "Consumer", "Contemporary",
	"Crime", "Dance", "Documentary", "Drama", "Elementary",
	"Erotica", "Exercise", "Fantasy", "Farm", "Fashion",
	"Fiction", "Food", "Football", "Foreign", "Fund-Raiser",
	"Game/Quiz", "Garden", "Golf", "Government", "Health",
	"High_School", "History", "Hobby", "Hockey", "Home",
	"Horror", "Information", "Instruction", "International", "Interview",
	"Language", "Legal", "Live", "Local", "Math",
	"Medical", "Meeting", "Military", "Mini-Series", "Music",
	"Mystery", "National", "Nature", "Police", "Politics",
	"Premiere", "Pre-Recorded", "Product", "Professional", "Public",
	"Racing", "Reading", "Repair", "Repeat", "Review",
	"Romance", "Science", "Series", "Service", "Shopping",
	"Soap_Opera", "Special", "Suspense", "Talk", "Technical",
	"Tennis", "Travel", "Variety", "Video", "Weather",
	"Western",
}

// StartTime is a program identification number: the scheduled start of
// the current program.
type StartTime struct {
	Minute int
	Hour   int
	Day    int
	Month  int
}

// Advisory is a decoded content advisory.
type Advisory struct {
	// System is "US TV", "MPA", "Canadian English" or "Canadian French".
	System string
	Rating string
	// Content lists US TV content flags such as "Violence".
	Content []string
}

// CGMS is the copy generation management state.
type CGMS struct {
	Copy string
	APS  string
	RCD  int
}

// TimeZone is the local time zone offset in hours from UTC and DST flag.
type TimeZone struct {
	Hours int
	DST   bool
}

// Info accumulates the metadata decoded so far. Program fields come from
// current class packets only.
type Info struct {
	NetworkName  string
	CallLetters  string
	TSID         uint32
	ProgramName  string
	ProgramTypes []string
	Start        StartTime
	HaveStart    bool
	Length       time.Duration
	Elapsed      time.Duration
	Advisory     Advisory
	CGMS         CGMS
	AspectStart  int
	AspectEnd    int
	Description  [8]string
	TimeOfDay    time.Time
	ResetSeconds bool
	TimeZone     TimeZone
	HaveTimeZone bool
}

// Event is one human readable line produced by a decoded packet, timed
// from the start of its XDS block to the end of packet.
type Event struct {
	Class Class
	Text  string
	Start int64
	End   int64
}

// Sink receives decoded events.
type Sink interface {
	EmitXDS(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// EmitXDS calls f(e).
func (f SinkFunc) EmitXDS(e Event) { f(e) }

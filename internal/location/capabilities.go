package location

import "fmt"

// Accuracy is a desired-accuracy hint in meters. The negative values are
// symbolic levels understood by the sensor.
type Accuracy float64

const (
	AccuracyBestForNavigation Accuracy = -2
	AccuracyBest              Accuracy = -1
	AccuracyNearestTenMeters  Accuracy = 10
	AccuracyHundredMeters     Accuracy = 100
	AccuracyKilometer         Accuracy = 1000
	AccuracyThreeKilometers   Accuracy = 3000
)

// DistanceFilterNone asks the sensor to report every movement.
const DistanceFilterNone = -1.0

// ActivityType classifies the expected motion so the sensor can tune its
// power use.
type ActivityType int

const (
	ActivityOther ActivityType = iota
	ActivityAutomotiveNavigation
	ActivityFitness
	ActivityOtherNavigation
)

func (a ActivityType) String() string {
	switch a {
	case ActivityOther:
		return "other"
	case ActivityAutomotiveNavigation:
		return "automotive_navigation"
	case ActivityFitness:
		return "fitness"
	case ActivityOtherNavigation:
		return "other_navigation"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// StreamHints are passed to the sensor each time streaming starts.
type StreamHints struct {
	Accuracy       Accuracy
	DistanceFilter float64
	Activity       ActivityType
}

// SensorHandle is the location sensor driver.
//
// Bind is called once, before any other method. Implementations must invoke
// the bound callbacks from their own goroutine and never synchronously from
// inside StartStreaming or StopStreaming. StartStreaming on a sensor that is
// already streaming must be harmless.
type SensorHandle interface {
	Bind(onSamples func([]Sample), onFailure func(error))
	StartStreaming(hints StreamHints) error
	StopStreaming()

	DistanceFilter() float64
	SetDistanceFilter(meters float64)
	DesiredAccuracy() Accuracy
	SetDesiredAccuracy(a Accuracy)
	ActivityType() ActivityType
	SetActivityType(a ActivityType)
}

// Token is an opaque background execution handle. The zero value means no
// token.
type Token string

// TokenProvider keeps the host process alive while a token is held.
type TokenProvider interface {
	Acquire() Token
	Release(Token)
}

// AuthorizationStatus is the platform's answer to "may this process read
// location".
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationAuthorized
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("authorization(%d)", int(s))
	}
}

// AuthorizationQuery reports whether tracking is currently permitted.
type AuthorizationQuery interface {
	LocationServicesEnabled() bool
	AuthorizationStatus() AuthorizationStatus
}

// Logger is a printf-style debug sink. It never affects control flow.
type Logger func(format string, v ...interface{})

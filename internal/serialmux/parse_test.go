package serialmux

import "testing"

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{ggaLine, EventTypePosition},
		{rmcLine, EventTypePosition},
		{"$GNGGA,,,,,,0,00,99.99,,,,,,*56", EventTypePosition},
		{"$GLGLL,4916.45,N,12311.12,W,225444,A,*1D", EventTypePosition},
		{gsvLine, EventTypeSatellites},
		{"$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39", EventTypeSatellites},
		{"$PMTK001,220,3*30", EventTypeProprietary},
		{"$PUBX,00,081350.00*00", EventTypeProprietary},
		{"$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48", EventTypeOther},
		{"!AIVDM,1,1,,B,15M67FC000G?ufbE`FepT@3n00Sa,0*5C", EventTypeOther},
		{"  " + ggaLine + "  ", EventTypePosition},
		{"$GP*00", EventTypeUnknown},
		{"garbage", EventTypeUnknown},
		{"", EventTypeUnknown},
		{"$", EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestFrameSentence(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"PMTK220,1000", "$PMTK220,1000*1F"},
		{"  PMTK220,1000\n", "$PMTK220,1000*1F"},
		{"GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", ggaLine},
		{"$PMTK101*32", "$PMTK101*32"},
	}
	for _, tt := range tests {
		if got := FrameSentence(tt.body); got != tt.want {
			t.Errorf("FrameSentence(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

package provider

import (
	"context"

	"trainwatch/internal/types"
)

// demoTrainNumber is the train served when the caller does not name one.
const demoTrainNumber = "16101"

// DemoProvider serves a fixed Chennai Egmore to Villupuram route without any
// network access. It backs local runs and the simulated position source, and
// deliberately includes a station without coordinates so the missing-position
// paths get exercised end to end.
type DemoProvider struct{}

// Compile-time assertion that DemoProvider implements types.RouteProvider.
var _ types.RouteProvider = (*DemoProvider)(nil)

// NewDemoProvider creates a DemoProvider.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{}
}

// FetchRoute always succeeds. The returned route carries the requested train
// number so downstream labeling stays consistent.
func (p *DemoProvider) FetchRoute(_ context.Context, trainNumber string) (*types.Route, error) {
	if trainNumber == "" {
		trainNumber = demoTrainNumber
	}
	return &types.Route{
		TrainNumber: trainNumber,
		TrainName:   "Chennai Egmore - Villupuram Express",
		Stations: []types.Station{
			{
				Name:               "Chennai Egmore",
				Code:               "MS",
				SequenceIndex:      0,
				Position:           types.NewGeoPoint(13.0732, 80.2609),
				ScheduledDeparture: "06:00",
			},
			{
				Name:               "Tambaram",
				Code:               "TBM",
				SequenceIndex:      1,
				Position:           types.NewGeoPoint(12.9249, 80.1000),
				ScheduledArrival:   "06:28",
				ScheduledDeparture: "06:30",
			},
			{
				Name:               "Chengalpattu Jn",
				Code:               "CGL",
				SequenceIndex:      2,
				Position:           types.NewGeoPoint(12.6921, 79.9756),
				ScheduledArrival:   "06:58",
				ScheduledDeparture: "07:00",
			},
			{
				Name:               "Melmaruvathur",
				Code:               "MLMR",
				SequenceIndex:      3,
				Position:           types.NewGeoPoint(12.4310, 79.8305),
				ScheduledArrival:   "07:23",
				ScheduledDeparture: "07:25",
			},
			{
				// Small halt with no published coordinates.
				Name:             "Olakur",
				Code:             "OLA",
				SequenceIndex:    4,
				ScheduledArrival: "07:38",
			},
			{
				Name:               "Tindivanam",
				Code:               "TMV",
				SequenceIndex:      5,
				Position:           types.NewGeoPoint(12.2343, 79.6500),
				ScheduledArrival:   "07:48",
				ScheduledDeparture: "07:50",
			},
			{
				Name:             "Villupuram Jn",
				Code:             "VM",
				SequenceIndex:    6,
				Position:         types.NewGeoPoint(11.9393, 79.4924),
				ScheduledArrival: "08:20",
			},
		},
	}, nil
}

package db

import (
	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"
)

type dataLoaderKey string

const (
	DataLoaderKeyVisitData dataLoaderKey = "visit_data_loader"
)

// VisitDataLoader batches the per-request reads of the list endpoints so a
// page of visits costs one booking fetch and one route fetch instead of N.
//
//	loader, ok := ctx.Value(db.DataLoaderKeyVisitData).(*db.VisitDataLoader)
type VisitDataLoader struct {
	GetVisitList      *dataloadgen.Loader[uuid.UUID, *VisitRecord]
	GetRoutePointList *dataloadgen.Loader[uuid.UUID, []LocationPoint]
	GetBookingList    *dataloadgen.Loader[uuid.UUID, *BookingRecord]
}

func NewVisitDataLoader(visits VisitDBWrapper, bookings BookingDBWrapper) *VisitDataLoader {
	return &VisitDataLoader{
		GetVisitList:      dataloadgen.NewMappedLoader(visits.DataLoaderGetVisitList),
		GetRoutePointList: dataloadgen.NewMappedLoader(visits.DataLoaderGetRoutePointList),
		GetBookingList:    dataloadgen.NewMappedLoader(bookings.DataLoaderGetBookingList),
	}
}

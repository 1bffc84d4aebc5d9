// Package marketplace defines the ports through which the sync services talk
// to the selling-partner vendor: asynchronous reports, the paginated
// financial event feed, FBA inbound shipments and FBA inventory summaries.
//
// Adapters live in infrastructure/spapi. Application services depend only on
// the interfaces and normalized types declared here.
package marketplace

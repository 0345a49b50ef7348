// Package chat turns YouTube liveChat/messages pages into message batches.
//
// It provides two pieces:
//   - ParseResponse / ParseItem: validate one raw page. Only text messages
//     are kept; every item is decoded on its own so one broken item never
//     takes its siblings down with it.
//   - Poller: the polling loop for one live chat. It carries the provider's
//     nextPageToken verbatim into the following request, waits the provider
//     supplied pollingIntervalMillis between requests, and keeps retrying at
//     the last known interval when a request or page fails.
package chat

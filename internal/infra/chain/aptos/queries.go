package aptos

// eventsQuery pages events strictly after a (version, index) cursor in ledger order.
const eventsQuery = `query Events($eventTypes: [String!], $cursorVersion: bigint!, $cursorEventIndex: bigint!, $limit: Int!) {
  events(
    where: {
      type: { _in: $eventTypes }
      _or: [
        { transaction_version: { _gt: $cursorVersion } }
        { transaction_version: { _eq: $cursorVersion }, event_index: { _gt: $cursorEventIndex } }
      ]
    }
    order_by: [{ transaction_version: asc }, { event_index: asc }]
    limit: $limit
  ) {
    transaction_version
    event_index
    type
    data
  }
}`

// eventsWithMetaQuery is eventsQuery plus the transaction fields used to avoid
// fullnode lookups.
const eventsWithMetaQuery = `query EventsWithMeta($eventTypes: [String!], $cursorVersion: bigint!, $cursorEventIndex: bigint!, $limit: Int!) {
  events(
    where: {
      type: { _in: $eventTypes }
      _or: [
        { transaction_version: { _gt: $cursorVersion } }
        { transaction_version: { _eq: $cursorVersion }, event_index: { _gt: $cursorEventIndex } }
      ]
    }
    order_by: [{ transaction_version: asc }, { event_index: asc }]
    limit: $limit
  ) {
    transaction_version
    event_index
    type
    data
    account_address
    transaction_hash
    transaction_timestamp
  }
}`

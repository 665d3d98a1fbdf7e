// Package store is the typed facade over the Redis keyspace. It owns every
// key-name template, all document serialization, and the translation of
// store-native failures into the four error kinds the rest of the service
// understands (ErrNotFound, ErrAlreadyExists, ErrTransient, ErrPermanent).
//
// Two gateways exist per process, one per store principal: the validator
// gateway serves the read-mostly validation path (key fetch, rate increment,
// audit append, usage bump) and the manager gateway serves the admin write
// surface. Which commands and key patterns each principal may touch is
// enforced by the store's ACL layer, not here.
package store

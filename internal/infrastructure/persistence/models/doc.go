// Package models contains GORM persistence models.
//
// Persistence models are kept separate from domain entities so that
// database tags and storage concerns never leak into the domain layer.
// Each model provides ToDomain/FromDomain conversion.
package models

package jwttoken

import (
	authmw "onboard/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *ReviewerClaims) *authmw.JWTClaims {
	return &authmw.JWTClaims{
		ReviewerID: claims.Subject,
		Name:       claims.Name,
		JTI:        claims.ID,
	}
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}

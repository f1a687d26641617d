package service

import "errors"

var (
	// ErrUsernameCollision 两个来源实体派生出相同 username（不自动加后缀）
	ErrUsernameCollision = errors.New("username collision")
	// ErrInvalidCredentials 登录失败（统一返回，不区分用户名/密码）
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrActiveToggleNotAllowed 只有 member 凭据允许停用/启用
	ErrActiveToggleNotAllowed = errors.New("active toggle is only allowed for member credentials")
	// ErrInvalidInput 请求参数错误
	ErrInvalidInput = errors.New("invalid input")
)

// Package docs echechess HTTP接口文档，注册到swag供 /openapi 与 Swagger UI 读取
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "健康检查",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HealthResponse"}},
                    "503": {"description": "依赖不可用", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/session": {
            "post": {
                "tags": ["Session"],
                "summary": "建立会话",
                "description": "签发会话令牌，同一令牌对应同一玩家",
                "produces": ["application/json"],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.SessionResponse"}}
                }
            }
        },
        "/api/v1/player": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["Session"],
                "summary": "当前玩家",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.PlayerView"}},
                    "401": {"description": "缺少会话", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/ui/session": {
            "post": {
                "tags": ["UiSession"],
                "summary": "创建界面会话",
                "description": "带上已有且仍有效的ID时不重建，并推送UI_SESSION_ALREADY_INITIALIZED",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "request", "in": "body", "required": false, "schema": {"$ref": "#/definitions/api.UiSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "已存在", "schema": {"$ref": "#/definitions/api.UiSessionResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.UiSessionResponse"}},
                    "400": {"description": "参数错误", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/ui/ping": {
            "post": {
                "tags": ["UiSession"],
                "summary": "界面会话心跳",
                "description": "未知或已过期的会话返回active=false，并推送UI_SESSION_EXPIRED",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.PingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.PingResponse"}},
                    "400": {"description": "参数错误", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "创建对局",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/game.CreateOptions"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/service.GameView"}},
                    "400": {"description": "参数错误", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game/{id}": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "查询对局",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.GameView"}},
                    "404": {"description": "对局不存在", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game/{id}/move": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "走子",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.MoveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Outcome"}},
                    "202": {"description": "结果未知", "schema": {"$ref": "#/definitions/service.Outcome"}},
                    "422": {"description": "动作被拒绝", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game/{id}/join": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "加入对局",
                "description": "有空位时入座，否则按对局设置观战或被拒绝",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": false, "schema": {"$ref": "#/definitions/api.ActionBase"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Outcome"}},
                    "422": {"description": "动作被拒绝", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game/{id}/side": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "换边",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.SideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Outcome"}},
                    "422": {"description": "动作被拒绝", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/v1/game/{id}/promote": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["Game"],
                "summary": "兵升变",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.PromoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Outcome"}},
                    "422": {"description": "动作被拒绝", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["WebSocket"],
                "summary": "WebSocket订阅",
                "description": "界面会话已失效时推送UI_SESSION_EXPIRED并关闭连接",
                "parameters": [
                    {"type": "string", "name": "ui", "in": "query", "required": true},
                    {"type": "string", "name": "game", "in": "query", "required": false}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "400": {"description": "参数错误", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "404": {"description": "对局不存在", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "mode": {"type": "string"},
                "node_id": {"type": "string"},
                "clients": {"type": "integer"}
            }
        },
        "api.SessionResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "token": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "api.UiSessionRequest": {
            "type": "object",
            "properties": {"ui_session_id": {"type": "string"}}
        },
        "api.UiSessionResponse": {
            "type": "object",
            "properties": {
                "ui_session_id": {"type": "string"},
                "existed": {"type": "boolean"},
                "ttl_seconds": {"type": "integer"}
            }
        },
        "api.PingRequest": {
            "type": "object",
            "required": ["ui_session_id"],
            "properties": {"ui_session_id": {"type": "string"}}
        },
        "api.PingResponse": {
            "type": "object",
            "properties": {
                "ui_session_id": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "api.ActionBase": {
            "type": "object",
            "properties": {"ui_session_id": {"type": "string"}}
        },
        "api.MoveRequest": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
                "ui_session_id": {"type": "string"},
                "from": {"type": "string"},
                "to": {"type": "string"},
                "promotion": {"type": "string"}
            }
        },
        "api.SideRequest": {
            "type": "object",
            "required": ["side"],
            "properties": {
                "ui_session_id": {"type": "string"},
                "side": {"type": "string", "enum": ["WHITE", "BLACK"]}
            }
        },
        "api.PromoteRequest": {
            "type": "object",
            "required": ["piece"],
            "properties": {
                "ui_session_id": {"type": "string"},
                "piece": {"type": "string", "enum": ["QUEEN", "ROOK", "BISHOP", "KNIGHT"]}
            }
        },
        "game.CreateOptions": {
            "type": "object",
            "properties": {
                "side": {"type": "string", "enum": ["WHITE", "BLACK"]},
                "allow_join": {"type": "boolean"},
                "allow_observers": {"type": "boolean"}
            }
        },
        "service.GameView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "turn": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "service.Outcome": {
            "type": "object",
            "properties": {
                "action_id": {"type": "string"},
                "game_id": {"type": "string"},
                "kind": {"type": "string"},
                "accepted": {"type": "boolean"},
                "reason": {"type": "string"},
                "version": {"type": "integer"},
                "pending": {"type": "boolean"}
            }
        },
        "service.PlayerView": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "created_game_ids": {"type": "array", "items": {"type": "string"}},
                "joined_game_ids": {"type": "array", "items": {"type": "string"}},
                "ui_session_ids": {"type": "array", "items": {"type": "string"}},
                "last_created_game_id": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "errors.AppError": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "error": {"$ref": "#/definitions/errors.AppError"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo 文档元信息
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "echechess API",
	Description:      "多节点国际象棋对局协调服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

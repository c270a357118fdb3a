package recipe

import "errors"

// Ошибки реестра шаблонов и генератора.
var (
	// ErrTemplateNotFound — для диагностики не зарегистрирован шаблон рецепта.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrUnknownFlavor — неизвестный формат рецепта.
	ErrUnknownFlavor = errors.New("unknown recipe flavor")

	// ErrWriteFile — не удалось записать сгенерированный файл.
	ErrWriteFile = errors.New("write generated file failed")
)
